package anonforum

import (
	"regexp"
	"strings"
)

type linkRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// LinkEncoder rewrites absolute links to forum pages into site independent
// placeholders that the restore side turns back into links.
type LinkEncoder struct {
	rules []linkRule
}

// NewLinkEncoder builds an encoder for links under wwwroot. A trailing slash
// on wwwroot is ignored.
func NewLinkEncoder(wwwroot string) *LinkEncoder {
	base := regexp.QuoteMeta(strings.TrimRight(wwwroot, "/")) + `/mod/anonforum/`

	// Order matters: the discuss.php forms with a suffix must run before the bare one.
	specs := []struct{ expr, repl string }{
		{`index\.php\?id=([0-9]+)`, `$$@ANONFORUMINDEX*${1}@$$`},
		{`view\.php\?id=([0-9]+)`, `$$@ANONFORUMVIEWBYID*${1}@$$`},
		{`view\.php\?f=([0-9]+)`, `$$@ANONFORUMVIEWBYF*${1}@$$`},
		{`discuss\.php\?d=([0-9]+)&parent=([0-9]+)`, `$$@FORUMDISCUSSIONVIEWPARENT*${1}*${2}@$$`},
		{`discuss\.php\?d=([0-9]+)#([0-9]+)`, `$$@ANONFORUMDISCUSSIONVIEWINSIDE*${1}*${2}@$$`},
		{`discuss\.php\?d=([0-9]+)`, `$$@ANONFORUMDISCUSSIONVIEW*${1}@$$`},
	}

	rules := make([]linkRule, len(specs))
	for i, s := range specs {
		rules[i] = linkRule{pattern: regexp.MustCompile(base + s.expr), replacement: s.repl}
	}

	return &LinkEncoder{rules: rules}
}

// EncodeContent implements backup.ContentEncoder.
func (e *LinkEncoder) EncodeContent(content string) string {
	if !strings.Contains(content, "/mod/anonforum/") {
		return content
	}
	for _, r := range e.rules {
		content = r.pattern.ReplaceAllString(content, r.replacement)
	}

	return content
}
