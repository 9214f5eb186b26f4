package normalization

import (
	"encoding/json"
	"fmt"
	"strings"
)

func strictParse(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// parseEmbedded applies the layered parse to JSON carried as text in field
// key: strict, then the outermost {...} slice, then with escaped or doubled
// quotes collapsed.
func (n *Normalizer) parseEmbedded(key, s string) (any, *Failure) {
	v, firstErr := strictParse(s)
	if firstErr == nil {
		return v, nil
	}

	base := s
	if i, j := strings.Index(s, "{"), strings.LastIndex(s, "}"); i >= 0 && j > i {
		base = s[i : j+1]
		if v, err := strictParse(base); err == nil {
			return v, nil
		}
	}

	for _, repl := range []*strings.Replacer{
		strings.NewReplacer(`\"`, `"`),
		strings.NewReplacer(`""`, `"`),
	} {
		if v, err := strictParse(repl.Replace(base)); err == nil {
			return v, nil
		}
	}

	return nil, &Failure{
		Kind:       FailureParse,
		Reason:     fmt.Sprintf("field %q is not valid JSON: %v", key, firstErr),
		RawPreview: Preview(s, n.opts.PreviewLimit),
	}
}
