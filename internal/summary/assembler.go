package summary

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/topicstream/topicstream/internal/models"
)

// Depth controls how much of a thread feeds the summarization prompt.
const (
	DepthSummary = "summary" // opening post only
	DepthHot     = "hot"     // most-liked replies
	DepthAll     = "all"     // every fetched post
	DepthSmart   = "smart"   // pick a depth from the content
)

const (
	hotMinLikes   = 2
	hotMaxPosts   = 10
	maxPostRunes  = 500
	maxPromptRows = 50
)

// SelectPosts narrows the fetched posts to the set the chosen depth
// summarizes. DepthSmart must be resolved with DetectContentType first.
func SelectPosts(posts []models.Post, depth string) []models.Post {
	switch depth {
	case DepthSummary:
		for _, p := range posts {
			if p.PostNumber == 1 {
				return []models.Post{p}
			}
		}
		return nil
	case DepthHot:
		var hot []models.Post
		for _, p := range posts {
			if p.LikeCount >= hotMinLikes {
				hot = append(hot, p)
			}
		}
		sort.SliceStable(hot, func(i, j int) bool {
			return hot[i].LikeCount > hot[j].LikeCount
		})
		if len(hot) > hotMaxPosts {
			hot = hot[:hotMaxPosts]
		}
		return hot
	default: // DepthAll
		return posts
	}
}

var (
	questionMarkers   = []string{"求助", "问题", "怎么", "请问", "为什么", "报错"}
	discussionMarkers = []string{"讨论", "看法", "聊聊", "觉得", "大家"}
	tutorialMarkers   = []string{"分享", "教程", "安装", "配置", "搭建"}
	reviewMarkers     = []string{"评测", "对比", "哪个好"}
)

// DetectContentType resolves DepthSmart from the title. Questions and
// reviews summarize best from their top replies, tutorials and shares
// from the opening post, open discussions from the full thread. Titles
// matching nothing fall back to hot replies.
func DetectContentType(title string) string {
	t := strings.ToLower(title)
	switch {
	case containsAny(t, questionMarkers):
		return DepthHot
	case containsAny(t, discussionMarkers):
		return DepthAll
	case containsAny(t, tutorialMarkers):
		return DepthSummary
	case containsAny(t, reviewMarkers):
		return DepthHot
	default:
		return DepthHot
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// ResolveDepth maps the requested depth to a concrete one. DepthSmart
// and unrecognized values are resolved from the title.
func ResolveDepth(depth, title string) string {
	switch depth {
	case DepthSummary, DepthHot, DepthAll:
		return depth
	default:
		return DetectContentType(title)
	}
}

// StripHTML extracts the text content of a rendered post body.
func StripHTML(cooked string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(cooked))
	if err != nil {
		return cooked
	}
	return strings.TrimSpace(doc.Text())
}

var depthInstructions = map[string]string{
	DepthSummary: "重点提取楼主的核心问题和主要观点，以及最有价值的回复。总结控制在100字以内。",
	DepthHot:     "总结热门回复的主要观点和讨论焦点。控制150字以内。",
	DepthAll:     "全面总结帖子讨论内容，包括问题、解决方案、各方观点。控制200字以内。",
}

// BuildPrompt renders the selected posts into the summarization prompt.
// The instruction line is keyed by depth; each post becomes one line of
// the form "[N楼 @user] (L赞) text" with the body stripped of markup and
// truncated.
func BuildPrompt(title string, posts []models.Post, depth string) string {
	instruction, ok := depthInstructions[depth]
	if !ok {
		instruction = depthInstructions[DepthAll]
	}

	var lines []string
	for _, p := range posts {
		if len(lines) >= maxPromptRows {
			break
		}
		text := StripHTML(p.Cooked)
		text = strings.Join(strings.Fields(text), " ")
		if text == "" {
			continue
		}
		if runes := []rune(text); len(runes) > maxPostRunes {
			text = string(runes[:maxPostRunes]) + "…"
		}
		lines = append(lines, fmt.Sprintf("[%d楼 @%s] (%d赞) %s", p.PostNumber, p.Username, p.LikeCount, text))
	}

	return fmt.Sprintf("请用中文总结以下论坛帖子的讨论内容：\n\n标题：%s\n\n%s\n\n帖子内容：\n%s\n\n请用简洁的 bullet points 格式总结关键要点：",
		title, instruction, strings.Join(lines, "\n\n"))
}
