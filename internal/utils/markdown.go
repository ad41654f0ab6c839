package utils

import (
	"bytes"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	mdParser = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)
	policy = bluemonday.UGCPolicy()
)

func init() {
	// Allow images
	policy.AllowImages()
	// 富文本编辑器的 @提及 和代码块语言
	policy.AllowAttrs("data-type", "data-id", "data-label").OnElements("span")
	policy.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre", "span")
	// Force links to open in new tab
	policy.AddTargetBlankToFullyQualifiedLinks(true)
	policy.RequireNoReferrerOnLinks(true)
}

// SanitizeHTML 清洗编辑器提交的 HTML（问题描述、回答）
func SanitizeHTML(raw string) string {
	return EnhanceHTMLContent(policy.Sanitize(raw))
}

// RenderMarkdown markdown -> 清洗后的 HTML，用于 AI 回答
func RenderMarkdown(source string) string {
	var buf bytes.Buffer
	if err := mdParser.Convert([]byte(source), &buf); err != nil {
		return policy.Sanitize(source) // Fallback
	}
	return EnhanceHTMLContent(string(policy.SanitizeBytes(buf.Bytes())))
}
