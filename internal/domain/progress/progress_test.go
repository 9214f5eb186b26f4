package progress

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestCleanDropsDuplicatesKeepingOrder(t *testing.T) {
	in := ItemsState{"beginner_module": {2, 0, 2, 1, 0}}
	got, err := in.Clean()
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	want := []int{2, 0, 1}
	if !reflect.DeepEqual(got["beginner_module"], want) {
		t.Fatalf("beginner_module: want=%v got=%v", want, got["beginner_module"])
	}
	if !reflect.DeepEqual(in["beginner_module"], []int{2, 0, 2, 1, 0}) {
		t.Fatalf("Clean mutated its receiver: %v", in["beginner_module"])
	}
}

func TestCleanRejectsBadInput(t *testing.T) {
	cases := map[string]ItemsState{
		"negative":  {"beginner_quiz": {0, -1}},
		"empty key": {"  ": {0}},
		"long key":  {strings.Repeat("k", MaxCategoryLength+1): {0}},
	}
	for name, in := range cases {
		if _, err := in.Clean(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	tooMany := ItemsState{}
	for i := 0; i <= MaxCategories; i++ {
		tooMany[fmt.Sprintf("category_%d", i)] = nil
	}
	if _, err := tooMany.Clean(); err == nil {
		t.Fatalf("too many categories: expected error")
	}
}

func TestCleanKeepsEmptyLists(t *testing.T) {
	got, err := ItemsState{"advanced_quiz": nil}.Clean()
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	list, ok := got["advanced_quiz"]
	if !ok || list == nil || len(list) != 0 {
		t.Fatalf("advanced_quiz: want empty non-nil list got=%v ok=%v", list, ok)
	}
}

func TestEncodeAndItemsRoundTrip(t *testing.T) {
	raw, err := ItemsState{"beginner_module": {0, 1}}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	p := &Progress{ItemsState: raw}
	items, err := p.Items()
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if !reflect.DeepEqual(items, ItemsState{"beginner_module": {0, 1}}) {
		t.Fatalf("Items: got=%v", items)
	}

	var nilProgress *Progress
	empty, err := nilProgress.Items()
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("nil progress: want empty map got=%v err=%v", empty, err)
	}
}
