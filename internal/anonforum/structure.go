// Package anonforum declares the backup structure of an anonymous forum
// activity and the link encoding applied to its exported content.
package anonforum

import "github.com/persistorai/anonforum/internal/backup"

const (
	// ModuleName is the activity module name used for archive paths.
	ModuleName = "anonforum"

	// Component is the plugin component owning ratings and files.
	Component = "mod_anonforum"

	// File is the archive member holding the activity document.
	File = "anonforum.xml"
)

const discussionsQuery = `
	SELECT *
	  FROM {anonforum_discussions}
	 WHERE forum = ?`

// Structure builds the element tree for one forum activity. The tree is the
// same shape regardless of includeUserInfo; without it only the forum itself
// is bound to a source and every nested element exports empty.
func Structure(includeUserInfo bool) *backup.Element {
	forum := backup.NewElement("anonforum", []string{"id"},
		"type", "name", "intro", "introformat",
		"assessed", "assesstimestart", "assesstimefinish", "scale",
		"maxbytes", "maxattachments", "forcesubscribe", "trackingtype",
		"rsstype", "rssarticles", "timemodified", "warnafter",
		"blockafter", "blockperiod", "completiondiscussions", "completionreplies",
		"completionposts", "displaywordcount")

	discussions := backup.NewElement("discussions", nil)
	discussion := backup.NewElement("discussion", []string{"id"},
		"name", "firstpost", "userid", "groupid",
		"assessed", "timemodified", "usermodified", "timestart",
		"timeend")

	posts := backup.NewElement("posts", nil)
	post := backup.NewElement("post", []string{"id"},
		"parent", "userid", "created", "modified",
		"mailed", "subject", "message", "messageformat",
		"messagetrust", "attachment", "totalscore", "mailnow")

	ratings := backup.NewElement("ratings", nil)
	rating := backup.NewElement("rating", []string{"id"},
		"component", "ratingarea", "scaleid", "value", "userid", "timecreated", "timemodified")

	subscriptions := backup.NewElement("subscriptions", nil)
	subscription := backup.NewElement("subscription", []string{"id"}, "userid")

	digests := backup.NewElement("digests", nil)
	digest := backup.NewElement("digest", []string{"id"}, "userid", "maildigest")

	readposts := backup.NewElement("readposts", nil)
	read := backup.NewElement("read", []string{"id"},
		"userid", "discussionid", "postid", "firstread",
		"lastread")

	trackedprefs := backup.NewElement("trackedprefs", nil)
	track := backup.NewElement("track", []string{"id"}, "userid")

	forum.AddChild(discussions)
	discussions.AddChild(discussion)

	forum.AddChild(subscriptions)
	subscriptions.AddChild(subscription)

	forum.AddChild(digests)
	digests.AddChild(digest)

	forum.AddChild(readposts)
	readposts.AddChild(read)

	forum.AddChild(trackedprefs)
	trackedprefs.AddChild(track)

	discussion.AddChild(posts)
	posts.AddChild(post)

	post.AddChild(ratings)
	ratings.AddChild(rating)

	forum.SetSourceTable("anonforum", []backup.Condition{backup.Where("id", backup.ActivityID())})

	if includeUserInfo {
		discussion.SetSourceSQL(discussionsQuery, backup.ParentID())

		// Replies reference their parent post, so parents must come first.
		post.SetSourceTable("anonforum_posts",
			[]backup.Condition{backup.Where("discussion", backup.ParentID())}, "id ASC")

		subscription.SetSourceTable("anonforum_subscriptions",
			[]backup.Condition{backup.Where("anonforum", backup.ParentID())})
		digest.SetSourceTable("anonforum_digests",
			[]backup.Condition{backup.Where("anonforum", backup.ParentID())})
		read.SetSourceTable("anonforum_read",
			[]backup.Condition{backup.Where("anonforumid", backup.ParentID())})
		track.SetSourceTable("anonforum_track_prefs",
			[]backup.Condition{backup.Where("anonforumid", backup.ParentID())})

		rating.SetSourceTable("rating", []backup.Condition{
			backup.Where("contextid", backup.ContextID()),
			backup.Where("component", backup.Literal(Component)),
			backup.Where("ratingarea", backup.Literal("post")),
			backup.Where("itemid", backup.ParentID()),
		})
		rating.SetSourceAlias("rating", "value")
	}

	forum.AnnotateIDs("scale", "scale")
	discussion.AnnotateIDs("group", "groupid")
	post.AnnotateIDs("user", "userid")
	rating.AnnotateIDs("scale", "scaleid")
	rating.AnnotateIDs("user", "userid")
	subscription.AnnotateIDs("user", "userid")
	digest.AnnotateIDs("user", "userid")
	read.AnnotateIDs("user", "userid")
	track.AnnotateIDs("user", "userid")

	forum.AnnotateFiles(Component, "intro", "")
	post.AnnotateFiles(Component, "post", "id")
	post.AnnotateFiles(Component, "attachment", "id")

	return forum
}
