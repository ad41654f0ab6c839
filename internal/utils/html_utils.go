package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var mentionPattern = regexp.MustCompile(`(?:^|[^\w@])@([A-Za-z0-9_]{3,30})`)

func parseFragment(htmlStr string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
}

// EnhanceHTMLContent 为 HTML 中的图片增加安全和优化属性
func EnhanceHTMLContent(htmlStr string) string {
	if htmlStr == "" {
		return ""
	}

	doc, err := parseFragment(htmlStr)
	if err != nil {
		return htmlStr
	}

	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		s.SetAttr("referrerpolicy", "no-referrer")
		s.SetAttr("loading", "lazy")
	})

	// goquery renders full document tags if missing, we just want the body content
	out, _ := doc.Find("body").Html()
	if out == "" {
		out, _ = doc.Html()
	}
	return out
}

// PlainText 去掉标签后的可见文本
func PlainText(htmlStr string) string {
	if htmlStr == "" {
		return ""
	}
	doc, err := parseFragment(htmlStr)
	if err != nil {
		return htmlStr
	}
	return strings.TrimSpace(doc.Text())
}

// VisibleLength 可见字符数（按 rune 计）
func VisibleLength(htmlStr string) int {
	return utf8.RuneCountInString(PlainText(htmlStr))
}

// ExtractMentions 取出被 @ 的用户名：编辑器生成的 mention 节点和正文里的 @username，去重保序
func ExtractMentions(htmlStr string) []string {
	if htmlStr == "" {
		return nil
	}
	doc, err := parseFragment(htmlStr)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		name = strings.TrimPrefix(strings.TrimSpace(name), "@")
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			return
		}
		seen[key] = true
		names = append(names, name)
	}

	doc.Find(`span[data-type="mention"]`).Each(func(i int, s *goquery.Selection) {
		if label, ok := s.Attr("data-label"); ok {
			add(label)
		} else if id, ok := s.Attr("data-id"); ok {
			add(id)
		}
		s.Remove()
	})

	for _, m := range mentionPattern.FindAllStringSubmatch(doc.Text(), -1) {
		add(m[1])
	}
	return names
}
