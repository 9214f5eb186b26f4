package jobs

// DefaultLevels are the difficulty tiers every completed job exposes.
var DefaultLevels = []string{"beginner", "medium", "advanced"}

// Content is the structured result of a completed job.
type Content struct {
	Topic  string                  `json:"topic"`
	Levels map[string]LevelContent `json:"levels"`
}

type LevelContent struct {
	Modules        []Module        `json:"modules"`
	Quiz           []QuizItem      `json:"quiz"`
	CodingProblems []CodingProblem `json:"coding_problems"`
	YoutubeVideos  []string        `json:"youtube_videos"`
}

type Module struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type QuizItem struct {
	Question    string   `json:"question"`
	Options     []string `json:"options,omitempty"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}

type CodingProblem struct {
	Problem  string `json:"problem"`
	Solution string `json:"solution"`
}

// Backfill guarantees every expected level exists and every list is non-nil,
// so the encoded form always carries [] rather than null. It is idempotent.
func (c *Content) Backfill(levels []string) {
	if c == nil {
		return
	}
	if c.Levels == nil {
		c.Levels = make(map[string]LevelContent, len(levels))
	}
	for _, name := range levels {
		if _, ok := c.Levels[name]; !ok {
			c.Levels[name] = LevelContent{}
		}
	}
	for name, lvl := range c.Levels {
		lvl.backfill()
		c.Levels[name] = lvl
	}
}

func (l *LevelContent) backfill() {
	if l.Modules == nil {
		l.Modules = []Module{}
	}
	if l.Quiz == nil {
		l.Quiz = []QuizItem{}
	}
	if l.CodingProblems == nil {
		l.CodingProblems = []CodingProblem{}
	}
	if l.YoutubeVideos == nil {
		l.YoutubeVideos = []string{}
	}
}

// Counts returns the number of items per list, mostly for logging.
func (l LevelContent) Counts() (modules, quiz, problems, videos int) {
	return len(l.Modules), len(l.Quiz), len(l.CodingProblems), len(l.YoutubeVideos)
}
