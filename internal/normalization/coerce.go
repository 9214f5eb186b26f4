package normalization

import (
	"net/url"
	"strings"

	"github.com/yungbote/topicgen-backend/internal/domain/jobs"
)

// coerceLevel maps one raw level object onto the typed lists. Items that
// carry nothing usable are dropped rather than invented.
func coerceLevel(raw any) jobs.LevelContent {
	var lvl jobs.LevelContent
	m, ok := raw.(map[string]any)
	if !ok {
		return lvl
	}
	for _, item := range listOf(m["modules"]) {
		if mod, ok := coerceModule(item); ok {
			lvl.Modules = append(lvl.Modules, mod)
		}
	}
	for _, item := range listOf(m["quiz"]) {
		if q, ok := coerceQuiz(item); ok {
			lvl.Quiz = append(lvl.Quiz, q)
		}
	}
	for _, item := range listOf(m["coding_problems"]) {
		if p, ok := coerceProblem(item); ok {
			lvl.CodingProblems = append(lvl.CodingProblems, p)
		}
	}
	for _, item := range listOf(m["youtube_videos"]) {
		if v, ok := coerceVideo(item); ok {
			lvl.YoutubeVideos = append(lvl.YoutubeVideos, v)
		}
	}
	return lvl
}

func mergeLevels(a, b jobs.LevelContent) jobs.LevelContent {
	a.Modules = append(a.Modules, b.Modules...)
	a.Quiz = append(a.Quiz, b.Quiz...)
	a.CodingProblems = append(a.CodingProblems, b.CodingProblems...)
	a.YoutubeVideos = append(a.YoutubeVideos, b.YoutubeVideos...)
	return a
}

// listOf treats a single object as a one-element list.
func listOf(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case map[string]any:
		return []any{t}
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return []any{t}
	}
	return nil
}

func coerceModule(v any) (jobs.Module, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return jobs.Module{Title: s}, s != ""
	case map[string]any:
		mod := jobs.Module{
			Title:   firstText(t, "title", "name"),
			Content: firstText(t, "content", "description"),
		}
		return mod, mod.Title != "" || mod.Content != ""
	}
	return jobs.Module{}, false
}

func coerceQuiz(v any) (jobs.QuizItem, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return jobs.QuizItem{Question: s}, s != ""
	case map[string]any:
		q := jobs.QuizItem{
			Question:    firstText(t, "question", "prompt"),
			Answer:      firstText(t, "answer", "correct_answer"),
			Explanation: firstText(t, "explanation"),
		}
		opts := t["options"]
		if opts == nil {
			opts = t["choices"]
		}
		for _, o := range listOf(opts) {
			if s := strings.TrimSpace(stringOf(o)); s != "" {
				q.Options = append(q.Options, s)
			}
		}
		return q, q.Question != ""
	}
	return jobs.QuizItem{}, false
}

func coerceProblem(v any) (jobs.CodingProblem, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return jobs.CodingProblem{Problem: s}, s != ""
	case map[string]any:
		p := jobs.CodingProblem{
			Problem:  firstText(t, "problem", "prompt", "question"),
			Solution: firstText(t, "solution", "answer"),
		}
		return p, p.Problem != ""
	}
	return jobs.CodingProblem{}, false
}

func coerceVideo(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case map[string]any:
		if u := firstText(t, "url", "link"); u != "" {
			return u, true
		}
		if id := firstText(t, "videoId", "video_id"); id != "" {
			return "https://www.youtube.com/watch?v=" + url.QueryEscape(id), true
		}
	}
	return "", false
}

func firstText(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch v.(type) {
		case map[string]any, []any:
			continue
		}
		if s := strings.TrimSpace(stringOf(v)); s != "" {
			return s
		}
	}
	return ""
}
