package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func (f *labelsFixture) create(t *testing.T, name string) {
	t.Helper()
	recorder := httptest.NewRecorder()
	f.handler.Create(recorder, jsonRequest(t, "POST", "/api/v1/labels", map[string]string{"name": name}))
	assertStatusCode(t, recorder, http.StatusCreated)
}

func (f *labelsFixture) addRefs(t *testing.T, label string, paths ...string) []string {
	t.Helper()
	req := requestWithChiParams(
		jsonRequest(t, "POST", "/api/v1/labels/"+label+"/references", map[string][]string{"paths": paths}),
		map[string]string{"label": label})
	recorder := httptest.NewRecorder()
	f.handler.AddReferences(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)

	var result struct {
		Added []string `json:"added"`
	}
	parseJSONResponse(t, recorder, &result)
	return result.Added
}

func TestLabelsHandler_CreateAndList(t *testing.T) {
	f := newLabelsFixture(t)
	f.create(t, "Alice")

	recorder := httptest.NewRecorder()
	f.handler.List(recorder, httptest.NewRequest("GET", "/api/v1/labels", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var result []LabelResponse
	parseJSONResponse(t, recorder, &result)

	if len(result) != 1 {
		t.Fatalf("expected 1 label, got %d", len(result))
	}
	if result[0].Label != "Alice" || result[0].Threshold != 0.3 {
		t.Errorf("unexpected label %+v", result[0])
	}
	if result[0].Folder != filepath.Join(f.root, "Alice") {
		t.Errorf("expected folder under the reference root, got '%s'", result[0].Folder)
	}
}

func TestLabelsHandler_CreateErrors(t *testing.T) {
	f := newLabelsFixture(t)
	f.create(t, "Jiří")

	tests := []struct {
		name string
		body any
		want int
	}{
		{"duplicate after normalization", map[string]string{"name": "jiri"}, http.StatusConflict},
		{"empty name", map[string]string{"name": "  "}, http.StatusBadRequest},
		{"hidden name", map[string]string{"name": ".trash"}, http.StatusBadRequest},
		{"not an object", []int{1}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			f.handler.Create(recorder, jsonRequest(t, "POST", "/api/v1/labels", tt.body))
			assertStatusCode(t, recorder, tt.want)
		})
	}
}

func TestLabelsHandler_Rename(t *testing.T) {
	f := newLabelsFixture(t)
	f.create(t, "Alice")
	src := writeFile(t, t.TempDir(), "a.jpg", "face")
	f.addRefs(t, "Alice", src)

	req := requestWithChiParams(
		jsonRequest(t, "PUT", "/api/v1/labels/Alice", map[string]string{"name": "Alicia"}),
		map[string]string{"label": "Alice"})
	recorder := httptest.NewRecorder()
	f.handler.Rename(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	if paths := f.store.Paths("Alicia"); len(paths) != 1 {
		t.Errorf("expected 1 reference under Alicia, got %v", paths)
	}
	if _, err := os.Stat(filepath.Join(f.root, "Alicia", "a.jpg")); err != nil {
		t.Errorf("expected file in renamed folder: %v", err)
	}
}

func TestLabelsHandler_Rename_NotFound(t *testing.T) {
	f := newLabelsFixture(t)

	req := requestWithChiParams(
		jsonRequest(t, "PUT", "/api/v1/labels/Ghost", map[string]string{"name": "Casper"}),
		map[string]string{"label": "Ghost"})
	recorder := httptest.NewRecorder()
	f.handler.Rename(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestLabelsHandler_DeleteAndUndo(t *testing.T) {
	f := newLabelsFixture(t)
	f.create(t, "Bob")
	f.addRefs(t, "Bob", writeFile(t, t.TempDir(), "b.jpg", "face"))

	req := requestWithChiParams(httptest.NewRequest("DELETE", "/api/v1/labels/Bob", nil), map[string]string{"label": "Bob"})
	recorder := httptest.NewRecorder()
	f.handler.Delete(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var deleted map[string]any
	parseJSONResponse(t, recorder, &deleted)
	if deleted["recoverable"] != true {
		t.Errorf("expected recoverable delete, got %v", deleted["recoverable"])
	}
	if _, err := os.Stat(filepath.Join(f.root, "Bob")); !os.IsNotExist(err) {
		t.Errorf("expected label folder to be gone, got %v", err)
	}

	recorder = httptest.NewRecorder()
	f.handler.History(recorder, httptest.NewRequest("GET", "/api/v1/undo", nil))
	var history []UndoEntry
	parseJSONResponse(t, recorder, &history)
	if len(history) != 1 || history[0].Kind != "delete_label" {
		t.Fatalf("expected one delete_label entry, got %+v", history)
	}

	recorder = httptest.NewRecorder()
	f.handler.Undo(recorder, httptest.NewRequest("POST", "/api/v1/undo", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	if paths := f.store.Paths("Bob"); len(paths) != 1 {
		t.Errorf("expected Bob's reference back, got %v", paths)
	}
	if _, err := os.Stat(filepath.Join(f.root, "Bob", "b.jpg")); err != nil {
		t.Errorf("expected file restored: %v", err)
	}
}

func TestLabelsHandler_Undo_Empty(t *testing.T) {
	f := newLabelsFixture(t)

	recorder := httptest.NewRecorder()
	f.handler.Undo(recorder, httptest.NewRequest("POST", "/api/v1/undo", nil))

	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestLabelsHandler_SetThreshold(t *testing.T) {
	f := newLabelsFixture(t)
	f.create(t, "Alice")

	tests := []struct {
		name  string
		label string
		body  any
		want  int
	}{
		{"valid", "Alice", map[string]float64{"threshold": 0.55}, http.StatusOK},
		{"out of range", "Alice", map[string]float64{"threshold": 1.5}, http.StatusBadRequest},
		{"missing value", "Alice", map[string]string{}, http.StatusBadRequest},
		{"unknown label", "Bob", map[string]float64{"threshold": 0.5}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestWithChiParams(
				jsonRequest(t, "PUT", "/api/v1/labels/"+tt.label+"/threshold", tt.body),
				map[string]string{"label": tt.label})
			recorder := httptest.NewRecorder()
			f.handler.SetThreshold(recorder, req)
			assertStatusCode(t, recorder, tt.want)
		})
	}

	if got := f.mgr.Threshold(t.Context(), "Alice"); got != 0.55 {
		t.Errorf("expected threshold 0.55, got %v", got)
	}
}

func TestLabelsHandler_LabelParamIsUnescaped(t *testing.T) {
	f := newLabelsFixture(t)
	f.create(t, "Mary Ann")
	f.addRefs(t, "Mary Ann", writeFile(t, t.TempDir(), "m.jpg", "face"))

	req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/labels/Mary%20Ann/references", nil),
		map[string]string{"label": "Mary%20Ann"})
	recorder := httptest.NewRecorder()
	f.handler.ListReferences(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var refs []ReferenceResponse
	parseJSONResponse(t, recorder, &refs)
	if len(refs) != 1 || refs[0].Label != "Mary Ann" {
		t.Errorf("expected Mary Ann's reference, got %+v", refs)
	}
}

func TestLabelsHandler_References(t *testing.T) {
	f := newLabelsFixture(t)
	inbox := t.TempDir()
	added := f.addRefs(t, "Alice",
		writeFile(t, inbox, "a.jpg", "one"),
		writeFile(t, inbox, "notes.txt", "skip me"))

	if len(added) != 1 {
		t.Fatalf("expected 1 added reference, got %v", added)
	}
	if scopes := f.rebuild.Scopes(); len(scopes) != 1 || scopes[0].IsAll() {
		t.Errorf("expected one scoped rebuild request, got %v", scopes)
	}

	req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/labels/Alice/references", nil), map[string]string{"label": "Alice"})
	recorder := httptest.NewRecorder()
	f.handler.ListReferences(recorder, req)

	var refs []ReferenceResponse
	parseJSONResponse(t, recorder, &refs)
	if len(refs) != 1 || refs[0].Path != added[0] {
		t.Fatalf("expected reference %s, got %+v", added[0], refs)
	}

	req = requestWithChiParams(
		jsonRequest(t, "DELETE", "/api/v1/labels/Alice/references", map[string][]string{"paths": added}),
		map[string]string{"label": "Alice"})
	recorder = httptest.NewRecorder()
	f.handler.DeleteReferences(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result struct {
		Deleted []string `json:"deleted"`
		Undo    bool     `json:"undo"`
	}
	parseJSONResponse(t, recorder, &result)
	if len(result.Deleted) != 1 || !result.Undo {
		t.Errorf("expected one undoable deletion, got %+v", result)
	}
	if len(f.store.Paths("Alice")) != 0 {
		t.Error("expected reference row to be removed")
	}
}

func TestLabelsHandler_References_EmptyPaths(t *testing.T) {
	f := newLabelsFixture(t)

	req := requestWithChiParams(
		jsonRequest(t, "POST", "/api/v1/labels/Alice/references", map[string][]string{"paths": {}}),
		map[string]string{"label": "Alice"})
	recorder := httptest.NewRecorder()
	f.handler.AddReferences(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "paths are required")
}

func TestLabelsHandler_ScanAndPurge(t *testing.T) {
	f := newLabelsFixture(t)
	gone := writeFile(t, filepath.Join(f.root, "Carol"), "c1.jpg", "x")
	writeFile(t, filepath.Join(f.root, "Carol"), "c2.jpg", "y")

	recorder := httptest.NewRecorder()
	f.handler.Scan(recorder, httptest.NewRequest("POST", "/api/v1/references/scan", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	var scan struct {
		Labels     []string `json:"labels"`
		References int      `json:"references"`
	}
	parseJSONResponse(t, recorder, &scan)
	if scan.References != 2 {
		t.Errorf("expected 2 references, got %d", scan.References)
	}

	if err := os.Remove(gone); err != nil {
		t.Fatal(err)
	}
	recorder = httptest.NewRecorder()
	f.handler.Purge(recorder, httptest.NewRequest("POST", "/api/v1/references/purge", nil))

	var purge map[string]int
	parseJSONResponse(t, recorder, &purge)
	if purge["purged"] != 1 {
		t.Errorf("expected 1 purged reference, got %d", purge["purged"])
	}
}
