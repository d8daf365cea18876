package testutil

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/dump-sleuth/pkg/model"
)

// AssertArtifact asserts that records hold an artifact of category whose
// value contains substr, and returns the first match.
func AssertArtifact(t *testing.T, records []model.ArtifactRecord, category, substr string) model.ArtifactRecord {
	t.Helper()
	for _, r := range records {
		if r.Category == category && strings.Contains(r.Value, substr) {
			return r
		}
	}
	t.Errorf("no %s artifact containing %q among %d records", category, substr, len(records))
	return model.ArtifactRecord{}
}

// JSONPath returns the value at a gjson path of a JSON document, failing
// the test when the path does not exist.
func JSONPath(t *testing.T, doc []byte, path string) gjson.Result {
	t.Helper()
	if !gjson.ValidBytes(doc) {
		t.Fatalf("invalid JSON document (%d bytes)", len(doc))
	}
	res := gjson.GetBytes(doc, path)
	if !res.Exists() {
		t.Fatalf("path %q not found", path)
	}
	return res
}
