package shadow

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ckptd/ckpt/internal/metastore"
)

// mockEngine is an in-memory engine implementation for testing the
// manager without subprocesses.
type mockEngine struct {
	repos    map[string]bool
	commits  map[string]bool
	messages map[string]string
	notes    map[string]string

	headHash string
	branch   string
	diff     string

	failAddAll bool
	failCommit bool
	failNote   bool

	calls []string
}

func newMockEngine() *mockEngine {
	return &mockEngine{
		repos:    make(map[string]bool),
		commits:  make(map[string]bool),
		messages: make(map[string]string),
		notes:    make(map[string]string),
		headHash: "feedface1234",
		branch:   "main",
	}
}

func (m *mockEngine) record(call string) { m.calls = append(m.calls, call) }

func (m *mockEngine) called(call string) bool {
	for _, c := range m.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (m *mockEngine) IsRepo(dir string) bool { return m.repos[dir] }

func (m *mockEngine) Init(ctx context.Context, dir string) error {
	m.record("init")
	m.repos[dir] = true
	return nil
}

func (m *mockEngine) CloneLocal(ctx context.Context, src, dst string) error {
	m.record("clone")
	m.repos[dst] = true
	return nil
}

func (m *mockEngine) AddAll(ctx context.Context, dir string) error {
	m.record("addall")
	if m.failAddAll {
		return errors.New("addall failed")
	}
	return nil
}

func (m *mockEngine) Commit(ctx context.Context, dir, message string, allowEmpty bool) error {
	m.record("commit")
	if m.failCommit {
		return errors.New("commit failed")
	}
	m.commits[m.headHash] = true
	m.messages[m.headHash] = message
	return nil
}

func (m *mockEngine) RevParse(ctx context.Context, dir, rev string) (string, error) {
	m.record("revparse " + rev)
	if rev == "HEAD" || rev == "main" {
		return m.headHash, nil
	}
	if m.commits[rev] {
		return rev, nil
	}
	return "", errors.New("unknown revision")
}

func (m *mockEngine) ResolveCommit(ctx context.Context, dir, hash string) bool {
	return m.commits[hash]
}

func (m *mockEngine) Checkout(ctx context.Context, dir, rev string) error {
	m.record("checkout " + rev)
	if !m.commits[rev] && rev != "main" && rev != "master" {
		return errors.New("unknown revision")
	}
	m.branch = ""
	return nil
}

func (m *mockEngine) CheckoutBranch(ctx context.Context, dir, branch string) error {
	m.record("checkoutbranch " + branch)
	m.branch = branch
	return nil
}

func (m *mockEngine) CurrentBranch(ctx context.Context, dir string) (string, error) {
	return m.branch, nil
}

func (m *mockEngine) AddNote(ctx context.Context, dir, hash, payload string) error {
	m.record("addnote")
	if m.failNote {
		return errors.New("note failed")
	}
	m.notes[hash] = payload
	return nil
}

func (m *mockEngine) ShowNote(ctx context.Context, dir, hash string) (string, error) {
	return m.notes[hash], nil
}

func (m *mockEngine) CommitMessage(ctx context.Context, dir, hash string) (string, error) {
	msg, ok := m.messages[hash]
	if !ok {
		return "", errors.New("unknown commit")
	}
	return msg, nil
}

func (m *mockEngine) DiffStat(ctx context.Context, dir, rev string) (string, error) {
	m.record("diffstat " + rev)
	return m.diff, nil
}

// newTestManager wires a manager over a real project dir, a real metadata
// store, and the mock engine. The shadow worktree is pre-registered as a
// repository.
func newTestManager(t *testing.T, eng *mockEngine) (*Manager, *metastore.Store, string) {
	t.Helper()
	projectDir := t.TempDir()
	stateDir := t.TempDir()
	meta := metastore.New(filepath.Join(stateDir, "metadata.json"), zerolog.Nop())

	mgr, err := NewManager(projectDir, filepath.Join(stateDir, "shadows"), eng, meta, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := os.MkdirAll(mgr.Worktree(), 0o755); err != nil {
		t.Fatal(err)
	}
	eng.repos[mgr.Worktree()] = true
	return mgr, meta, projectDir
}

func TestValidHash(t *testing.T) {
	tests := []struct {
		hash  string
		valid bool
	}{
		{"abcd", true},
		{"deadbeef", true},
		{strings.Repeat("a", 40), true},
		{strings.Repeat("a", 41), false},
		{"abc", false},
		{"", false},
		{"ABCD", false},
		{"xyz9", false},
		{"abcd1234; rm -rf /", false},
		{"../../etc", false},
	}
	for _, tt := range tests {
		if got := ValidHash(tt.hash); got != tt.valid {
			t.Errorf("ValidHash(%q) = %v, expected %v", tt.hash, got, tt.valid)
		}
	}
}

func TestStripEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		expected string
	}{
		{
			name:     "full envelope",
			message:  "CHECKPOINT: Before editing a.go [2025-06-01T12:00:00Z]",
			expected: "Before editing a.go",
		},
		{
			name:     "multiline keeps first line only",
			message:  "CHECKPOINT: Before editing a.go [2025-06-01T12:00:00Z]\n\nbody",
			expected: "Before editing a.go",
		},
		{
			name:     "prefix without timestamp",
			message:  "CHECKPOINT: manual snapshot",
			expected: "manual snapshot",
		},
		{
			name:     "plain message passes through",
			message:  "Initial commit",
			expected: "Initial commit",
		},
		{
			name:     "brackets in free text",
			message:  "CHECKPOINT: fix [urgent] thing [2025-06-01T12:00:00Z]",
			expected: "fix [urgent] thing",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripEnvelope(tt.message); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestEncodeNoteTruncation(t *testing.T) {
	files := make([]string, 0, 40000)
	for i := 0; i < 40000; i++ {
		files = append(files, strings.Repeat("f", 30))
	}
	payload := encodeNote(NoteMetadata{ToolName: "Write", SessionID: "s", FilesAffected: files})

	if len(payload) > maxNoteBytes {
		t.Fatalf("Expected payload within %d bytes, got %d", maxNoteBytes, len(payload))
	}
	var meta NoteMetadata
	if err := json.Unmarshal([]byte(payload), &meta); err != nil {
		t.Fatalf("Truncated payload is not valid JSON: %v", err)
	}
	if !meta.Truncated {
		t.Error("Expected truncated flag set")
	}
	if len(meta.FilesAffected) != truncatedFileLimit {
		t.Errorf("Expected %d files kept, got %d", truncatedFileLimit, len(meta.FilesAffected))
	}
	if meta.ToolName != "Write" || meta.SessionID != "s" {
		t.Error("Expected tool name and session id to survive truncation")
	}
}

func TestEncodeNoteSmallPayloadUntouched(t *testing.T) {
	payload := encodeNote(NoteMetadata{ToolName: "Edit", SessionID: "s", FilesAffected: []string{"/p/a.go"}})
	var meta NoteMetadata
	if err := json.Unmarshal([]byte(payload), &meta); err != nil {
		t.Fatal(err)
	}
	if meta.Truncated {
		t.Error("Expected no truncation for a small payload")
	}
}

func TestCreateCheckpoint(t *testing.T) {
	eng := newMockEngine()
	mgr, _, projectDir := newTestManager(t, eng)
	writeFile(t, filepath.Join(projectDir, "a.txt"), "alpha")

	hash := mgr.CreateCheckpoint(context.Background(), "Before editing a.txt", NoteMetadata{
		ToolName:  "Edit",
		SessionID: "sess-1",
	})
	if hash != eng.headHash {
		t.Fatalf("Expected hash %s, got %q", eng.headHash, hash)
	}

	// The project tree was mirrored into the worktree before committing.
	if got := readFile(t, filepath.Join(mgr.Worktree(), "a.txt")); got != "alpha" {
		t.Errorf("Expected worktree mirror, got %q", got)
	}
	msg := eng.messages[hash]
	if !strings.HasPrefix(msg, "CHECKPOINT: Before editing a.txt [") {
		t.Errorf("Unexpected commit envelope %q", msg)
	}
	if eng.notes[hash] == "" {
		t.Error("Expected annotation attached")
	}
}

func TestCreateCheckpointNoShadowRepo(t *testing.T) {
	eng := newMockEngine()
	mgr, _, _ := newTestManager(t, eng)
	eng.repos[mgr.Worktree()] = false

	if hash := mgr.CreateCheckpoint(context.Background(), "msg", NoteMetadata{}); hash != "" {
		t.Errorf("Expected empty hash without a shadow repo, got %q", hash)
	}
}

func TestCreateCheckpointCommitFailure(t *testing.T) {
	eng := newMockEngine()
	eng.failCommit = true
	mgr, _, _ := newTestManager(t, eng)

	if hash := mgr.CreateCheckpoint(context.Background(), "msg", NoteMetadata{}); hash != "" {
		t.Errorf("Expected empty hash on commit failure, got %q", hash)
	}
}

func TestCreateCheckpointNoteFailureNonFatal(t *testing.T) {
	eng := newMockEngine()
	eng.failNote = true
	mgr, _, _ := newTestManager(t, eng)

	if hash := mgr.CreateCheckpoint(context.Background(), "msg", NoteMetadata{}); hash == "" {
		t.Error("Expected checkpoint to survive a failed annotation")
	}
}

func TestCreateCheckpointRecoversDetachedWorktree(t *testing.T) {
	eng := newMockEngine()
	eng.branch = "" // detached, as after an interrupted restore
	mgr, _, _ := newTestManager(t, eng)

	if hash := mgr.CreateCheckpoint(context.Background(), "msg", NoteMetadata{}); hash == "" {
		t.Fatal("Expected checkpoint to succeed")
	}
	if !eng.called("checkoutbranch main") {
		t.Error("Expected worktree returned to the primary branch first")
	}
}

func TestInitShadowRepoFresh(t *testing.T) {
	eng := newMockEngine()
	projectDir := t.TempDir()
	writeFile(t, filepath.Join(projectDir, "a.txt"), "alpha")
	meta := metastore.New(filepath.Join(t.TempDir(), "metadata.json"), zerolog.Nop())

	mgr, err := NewManager(projectDir, t.TempDir(), eng, meta, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if !mgr.InitShadowRepo(context.Background()) {
		t.Fatal("Expected shadow init to succeed")
	}
	if !eng.called("init") {
		t.Error("Expected fresh history initialized")
	}
	if eng.called("clone") {
		t.Error("Expected no clone for a non-repo project")
	}
	if got := readFile(t, filepath.Join(mgr.Worktree(), "a.txt")); got != "alpha" {
		t.Errorf("Expected baseline mirror, got %q", got)
	}
}

func TestInitShadowRepoClonesExistingProject(t *testing.T) {
	eng := newMockEngine()
	projectDir := t.TempDir()
	eng.repos[projectDir] = true
	meta := metastore.New(filepath.Join(t.TempDir(), "metadata.json"), zerolog.Nop())

	mgr, err := NewManager(projectDir, t.TempDir(), eng, meta, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if !mgr.InitShadowRepo(context.Background()) {
		t.Fatal("Expected shadow init to succeed")
	}
	if !eng.called("clone") {
		t.Error("Expected project history cloned into the shadow")
	}
}

func TestInitShadowRepoIdempotent(t *testing.T) {
	eng := newMockEngine()
	mgr, _, _ := newTestManager(t, eng)

	if !mgr.InitShadowRepo(context.Background()) {
		t.Fatal("Expected existing shadow repo recognized")
	}
	if eng.called("init") || eng.called("clone") {
		t.Error("Expected no initialization work for an existing shadow repo")
	}
}

func TestListCheckpointsFiltersUnresolvable(t *testing.T) {
	eng := newMockEngine()
	mgr, meta, _ := newTestManager(t, eng)

	eng.commits["aaaa1111"] = true
	eng.messages["aaaa1111"] = "CHECKPOINT: Before editing a.go [2025-06-01T12:00:00Z]"
	if _, err := meta.AddCheckpoint(mgr.ProjectID(), "aaaa1111", "Edit", nil, "s"); err != nil {
		t.Fatal(err)
	}
	// Present in metadata but pruned from history.
	if _, err := meta.AddCheckpoint(mgr.ProjectID(), "bbbb2222", "Edit", nil, "s"); err != nil {
		t.Fatal(err)
	}

	entries := mgr.ListCheckpoints(context.Background())
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].Hash != "aaaa1111" {
		t.Errorf("Expected aaaa1111, got %s", entries[0].Hash)
	}
	if entries[0].Message != "Before editing a.go" {
		t.Errorf("Expected stripped message, got %q", entries[0].Message)
	}
}

func TestRestoreCheckpoint(t *testing.T) {
	eng := newMockEngine()
	mgr, _, projectDir := newTestManager(t, eng)
	eng.commits["aaaa1111"] = true
	writeFile(t, filepath.Join(mgr.Worktree(), "a.txt"), "from checkpoint")

	if !mgr.RestoreCheckpoint(context.Background(), "aaaa1111", false) {
		t.Fatal("Expected restore to succeed")
	}
	if !eng.called("checkout aaaa1111") {
		t.Error("Expected checkpoint checked out")
	}
	if got := readFile(t, filepath.Join(projectDir, "a.txt")); got != "from checkpoint" {
		t.Errorf("Expected project tree restored, got %q", got)
	}
	if !eng.called("checkoutbranch main") {
		t.Error("Expected worktree returned to the primary branch")
	}
}

func TestRestoreCheckpointDryRun(t *testing.T) {
	eng := newMockEngine()
	mgr, _, projectDir := newTestManager(t, eng)
	eng.commits["aaaa1111"] = true
	writeFile(t, filepath.Join(mgr.Worktree(), "a.txt"), "from checkpoint")

	if !mgr.RestoreCheckpoint(context.Background(), "aaaa1111", true) {
		t.Fatal("Expected dry run to succeed")
	}
	if _, err := os.Stat(filepath.Join(projectDir, "a.txt")); !os.IsNotExist(err) {
		t.Error("Expected project tree untouched on dry run")
	}
}

func TestRestoreCheckpointRejectsBadHash(t *testing.T) {
	eng := newMockEngine()
	mgr, _, _ := newTestManager(t, eng)

	for _, hash := range []string{"", "xyz", "ABCDEF", "abcd; rm"} {
		if mgr.RestoreCheckpoint(context.Background(), hash, false) {
			t.Errorf("Expected restore of %q rejected", hash)
		}
	}
	if eng.called("checkout xyz") {
		t.Error("Expected invalid hash never to reach the engine")
	}
}

func TestGetCheckpointDiff(t *testing.T) {
	eng := newMockEngine()
	eng.diff = " a.txt | 2 +-\n 1 file changed"
	mgr, meta, projectDir := newTestManager(t, eng)
	writeFile(t, filepath.Join(projectDir, "a.txt"), "alpha")
	eng.commits["aaaa1111"] = true
	if _, err := meta.AddCheckpoint(mgr.ProjectID(), "aaaa1111", "Edit", nil, "s"); err != nil {
		t.Fatal(err)
	}

	t.Run("explicit hash", func(t *testing.T) {
		out := mgr.GetCheckpointDiff(context.Background(), "aaaa1111")
		if out != eng.diff {
			t.Errorf("Expected diff output, got %q", out)
		}
		if !eng.called("diffstat aaaa1111") {
			t.Error("Expected diff against the named checkpoint")
		}
	})

	t.Run("defaults to latest checkpoint", func(t *testing.T) {
		eng.calls = nil
		_ = mgr.GetCheckpointDiff(context.Background(), "")
		if !eng.called("diffstat aaaa1111") {
			t.Error("Expected diff against the latest resolvable checkpoint")
		}
	})

	t.Run("no shadow repo", func(t *testing.T) {
		eng.repos[mgr.Worktree()] = false
		defer func() { eng.repos[mgr.Worktree()] = true }()
		if out := mgr.GetCheckpointDiff(context.Background(), ""); out != "" {
			t.Errorf("Expected empty diff without a shadow repo, got %q", out)
		}
	})
}
