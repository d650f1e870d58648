// Package storetest provides an in-process SQLite database with the forum
// schema and a small fixture for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/anonforum/internal/db"
	"github.com/persistorai/anonforum/internal/db/migrations"
	"github.com/persistorai/anonforum/internal/store"
)

// Fixture ids.
const (
	CourseID      = 2
	OtherCourseID = 3

	ForumID   = 1
	ModuleID  = 10
	ContextID = 30

	EmptyForumID = 2
	OtherForumID = 3

	DiscussionID = 5
	FirstPostID  = 100
	ReplyID      = 101

	AuthorID  = 3
	ReplierID = 4
)

// NewSQLite returns SQLite-backed records over a migrated temporary database.
func NewSQLite(t *testing.T) *store.SQLRecords {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	path := filepath.Join(t.TempDir(), "anonforum.db")
	sqlDB, err := db.Open(db.DriverSQLite, path)
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	dialect, err := db.GooseDialect(db.DriverSQLite)
	if err != nil {
		t.Fatalf("goose dialect: %v", err)
	}

	if err := db.RunMigrations(context.Background(), sqlDB, dialect, log, migrations.FS); err != nil {
		t.Fatalf("migrating sqlite: %v", err)
	}

	return store.NewSQLRecords(sqlDB, store.DialectSQLite, "", log)
}

var fixture = []string{
	// Forum 1 (course 2) holds the discussion, forum 2 (course 2) is empty and
	// forum 3 lives in course 3.
	`INSERT INTO {course_modules} (id, course, module, instance) VALUES
		(10, 2, 1, 1), (11, 2, 1, 2), (12, 3, 1, 3)`,
	`INSERT INTO {context} (id, contextlevel, instanceid) VALUES
		(30, 70, 10), (31, 70, 11), (32, 70, 12), (40, 50, 2)`,
	`INSERT INTO {anonforum} (id, course, type, name, intro, scale, timemodified) VALUES
		(1, 2, 'general', 'Anonymous Q&A', '<a href="https://lms.example.edu/mod/anonforum/view.php?id=10">Q&A</a>', -2, 1700000000),
		(2, 2, 'general', 'Quiet forum', '', 0, 1700000000),
		(3, 3, 'general', 'Other course', '', 100, 1700000000)`,
	`INSERT INTO {anonforum_discussions} (id, course, forum, name, firstpost, userid, groupid, timemodified, usermodified) VALUES
		(5, 2, 1, 'Welcome', 100, 3, -1, 1700000100, 4),
		(6, 3, 3, 'Elsewhere', 102, 3, -1, 1700000300, 3)`,
	`INSERT INTO {anonforum_posts} (id, discussion, parent, userid, created, modified, subject, message, messageformat) VALUES
		(101, 5, 100, 4, 1700000100, 1700000100, 'Re: Welcome', 'Thanks', 1),
		(100, 5, 0, 3, 1700000000, 1700000000, 'Welcome', 'Hello all', 1),
		(102, 6, 0, 3, 1700000300, 1700000300, 'Elsewhere', 'Hi', 1)`,
	`INSERT INTO {rating} (id, contextid, component, ratingarea, itemid, scaleid, rating, userid, timecreated, timemodified) VALUES
		(1, 30, 'mod_anonforum', 'post', 101, -2, 1, 3, 1700000200, 1700000200),
		(2, 30, 'mod_glossary', 'entry', 101, 5, 4, 7, 1700000200, 1700000200),
		(3, 31, 'mod_anonforum', 'post', 101, 5, 4, 8, 1700000200, 1700000200)`,
	`INSERT INTO {anonforum_subscriptions} (id, userid, anonforum) VALUES (1, 3, 1), (2, 9, 3)`,
	`INSERT INTO {anonforum_digests} (id, userid, anonforum, maildigest) VALUES (1, 4, 1, 1)`,
	`INSERT INTO {anonforum_read} (id, userid, anonforumid, discussionid, postid, firstread, lastread) VALUES
		(1, 4, 1, 5, 100, 1700000050, 1700000060)`,
	`INSERT INTO {anonforum_track_prefs} (id, userid, anonforumid) VALUES (1, 6, 1)`,
}

// Seed loads the fixture into db.
func Seed(t *testing.T, d store.DB) {
	t.Helper()

	for i, stmt := range fixture {
		if _, err := d.Exec(context.Background(), stmt); err != nil {
			t.Fatalf("seeding statement %d: %v", i, err)
		}
	}
}
