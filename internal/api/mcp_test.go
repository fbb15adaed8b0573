package api

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/memoryd/internal/document"
	"github.com/kalambet/memoryd/internal/reflection"
	"github.com/kalambet/memoryd/internal/storage"
)

// --- mocks ---

type memProfiles struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newMemProfiles() *memProfiles {
	return &memProfiles{data: make(map[string]string)}
}

func (m *memProfiles) Read(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	doc, ok := m.data[userID]
	if !ok {
		return "", storage.ErrNotFound
	}
	return doc, nil
}

func (m *memProfiles) Write(_ context.Context, userID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[userID] = content
	return nil
}

func (m *memProfiles) Exists(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.data[userID]
	return ok, nil
}

func (m *memProfiles) Location(userID string) string {
	return "mem://" + userID + "/me.md"
}

type memModels struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

func newMemModels() *memModels {
	return &memModels{data: make(map[string]map[string]string)}
}

func (m *memModels) Read(_ context.Context, userID, modelID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.data[userID][modelID]
	if !ok {
		return "", storage.ErrNotFound
	}
	return doc, nil
}

func (m *memModels) Write(_ context.Context, userID, modelID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[userID] == nil {
		m.data[userID] = make(map[string]string)
	}
	m.data[userID][modelID] = content
	return nil
}

func (m *memModels) Exists(_ context.Context, userID, modelID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[userID][modelID]
	return ok, nil
}

func (m *memModels) List(_ context.Context, userID string) ([]storage.ModelProfileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var infos []storage.ModelProfileInfo
	for id, doc := range m.data[userID] {
		infos = append(infos, storage.ModelProfileInfo{
			ModelID:      id,
			Size:         int64(len(doc)),
			LastModified: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
		})
	}
	return infos, nil
}

func (m *memModels) Location(userID, modelID string) string {
	return "mem://" + userID + "/claude/" + modelID + ".md"
}

// --- helpers ---

func newTestDeps(t *testing.T) (Deps, *memProfiles, *memModels) {
	t.Helper()
	profiles := newMemProfiles()
	models := newMemModels()
	deps := Deps{
		Profiles:      profiles,
		Models:        models,
		Prompts:       reflection.NewBuilder(),
		Now:           func() time.Time { return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC) },
		DefaultUserID: "tester",
	}
	return deps, profiles, models
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	result, err := handler(context.Background(), makeCallToolRequest(name, args))
	if err != nil {
		t.Fatalf("%s returned transport error: %v", name, err)
	}
	return result
}

// --- tests ---

func TestLoadProfile_Missing(t *testing.T) {
	deps, _, _ := newTestDeps(t)

	result := callTool(t, mcpLoadProfile(deps), "load_profile", nil)
	if result.IsError {
		t.Fatalf("missing profile must not be a tool error: %s", toolText(t, result))
	}
	text := toolText(t, result)
	if !strings.Contains(text, "No profile found at mem://tester/me.md") {
		t.Errorf("missing location hint: %s", text)
	}
	if !strings.Contains(text, "save_to_profile") {
		t.Errorf("missing creation hint: %s", text)
	}
}

func TestLoadProfile_ReturnsContent(t *testing.T) {
	deps, profiles, _ := newTestDeps(t)
	profiles.data["tester"] = "# Me\n\n## Identity\n- Backend engineer\n"

	text := toolText(t, callTool(t, mcpLoadProfile(deps), "load_profile", nil))
	if !strings.Contains(text, "# Personal Profile Loaded") {
		t.Errorf("missing header: %s", text)
	}
	if !strings.Contains(text, "- Backend engineer") {
		t.Errorf("missing profile body: %s", text)
	}
}

func TestSaveToProfile_InstantiatesTemplate(t *testing.T) {
	deps, profiles, _ := newTestDeps(t)

	result := callTool(t, mcpSaveToProfile(deps), "save_to_profile", map[string]interface{}{
		"section": "Interests & Passions",
		"content": "Distributed systems",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != `Added to Interests & Passions: "Distributed systems"` {
		t.Errorf("confirmation = %q", got)
	}

	saved := profiles.data["tester"]
	if !strings.HasPrefix(saved, "# Me\n") {
		t.Errorf("template not instantiated: %q", saved[:min(len(saved), 40)])
	}
	if !strings.Contains(saved, "## Interests & Passions\n\n- Distributed systems") {
		t.Errorf("bullet not placed under section:\n%s", saved)
	}
}

func TestSaveLoadRemove_EndToEnd(t *testing.T) {
	deps, profiles, _ := newTestDeps(t)

	result := callTool(t, mcpSaveToProfile(deps), "save_to_profile", map[string]interface{}{
		"section": "Goals",
		"content": "Run a marathon",
	})
	if result.IsError {
		t.Fatalf("save: %s", toolText(t, result))
	}

	loaded := toolText(t, callTool(t, mcpLoadProfile(deps), "load_profile", nil))
	if !strings.Contains(loaded, "- Run a marathon") {
		t.Errorf("loaded profile missing saved entry:\n%s", loaded)
	}

	result = callTool(t, mcpRemoveFromProfile(deps), "remove_from_profile", map[string]interface{}{
		"line_content": "Run a marathon",
	})
	if result.IsError {
		t.Fatalf("remove: %s", toolText(t, result))
	}
	if got := toolText(t, result); !strings.Contains(got, "Run a marathon") {
		t.Errorf("confirmation does not name removed content: %q", got)
	}
	if strings.Contains(profiles.data["tester"], "Run a marathon") {
		t.Errorf("entry survived removal:\n%s", profiles.data["tester"])
	}
}

func TestSaveToProfile_InvalidSection(t *testing.T) {
	deps, profiles, _ := newTestDeps(t)

	result := callTool(t, mcpSaveToProfile(deps), "save_to_profile", map[string]interface{}{
		"section": "Secrets",
		"content": "anything",
	})
	if !result.IsError {
		t.Fatal("expected tool error for unknown section")
	}
	text := toolText(t, result)
	if !strings.Contains(text, `Invalid section: "Secrets"`) {
		t.Errorf("missing section name: %s", text)
	}
	if !strings.Contains(text, "Identity") || !strings.Contains(text, "Relationships") {
		t.Errorf("missing valid section list: %s", text)
	}
	if len(profiles.data) != 0 {
		t.Error("invalid section must not write the profile")
	}
}

func TestSaveToProfile_MissingArgs(t *testing.T) {
	deps, _, _ := newTestDeps(t)

	result := callTool(t, mcpSaveToProfile(deps), "save_to_profile", map[string]interface{}{
		"section": "Goals",
	})
	if !result.IsError || toolText(t, result) != "content is required" {
		t.Errorf("got: %s", toolText(t, result))
	}
}

func TestRemoveFromProfile_RoundTrip(t *testing.T) {
	deps, profiles, _ := newTestDeps(t)

	callTool(t, mcpSaveToProfile(deps), "save_to_profile", map[string]interface{}{
		"section": "Goals",
		"content": "Ship the beta",
	})
	before := profiles.data["tester"]

	result := callTool(t, mcpRemoveFromProfile(deps), "remove_from_profile", map[string]interface{}{
		"line_content": "Ship the beta",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != `Removed from profile: "Ship the beta"` {
		t.Errorf("confirmation = %q", got)
	}
	if strings.Contains(profiles.data["tester"], "Ship the beta") {
		t.Errorf("line still present after removal:\n%s", profiles.data["tester"])
	}
	if profiles.data["tester"] == before {
		t.Error("profile unchanged after removal")
	}
}

func TestRemoveFromProfile_LineNotFound(t *testing.T) {
	deps, profiles, _ := newTestDeps(t)
	profiles.data["tester"] = document.UserTemplate

	result := callTool(t, mcpRemoveFromProfile(deps), "remove_from_profile", map[string]interface{}{
		"line_content": "never existed",
	})
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if got := toolText(t, result); got != `Could not find line in profile: "never existed"` {
		t.Errorf("got: %s", got)
	}
}

func TestRemoveFromProfile_NoProfile(t *testing.T) {
	deps, _, _ := newTestDeps(t)

	result := callTool(t, mcpRemoveFromProfile(deps), "remove_from_profile", map[string]interface{}{
		"line_content": "anything",
	})
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if !strings.Contains(toolText(t, result), "No profile found at") {
		t.Errorf("got: %s", toolText(t, result))
	}
}

func TestReflect_EmbedsProfileAndSummary(t *testing.T) {
	deps, profiles, _ := newTestDeps(t)
	profiles.data["tester"] = "# Me\n\n## Identity\n- Backend engineer\n"

	text := toolText(t, callTool(t, mcpReflect(deps), "reflect", map[string]interface{}{
		"conversation_summary": "We discussed moving the cache to Redis.",
	}))
	if !strings.Contains(text, "# Reflection Analysis") {
		t.Errorf("missing prompt header: %s", text[:min(len(text), 60)])
	}
	if !strings.Contains(text, "We discussed moving the cache to Redis.") {
		t.Error("summary not embedded")
	}
	if !strings.Contains(text, "- Backend engineer") {
		t.Error("profile not embedded")
	}
}

func TestReflect_RequiresProfile(t *testing.T) {
	deps, _, _ := newTestDeps(t)

	result := callTool(t, mcpReflect(deps), "reflect", map[string]interface{}{
		"conversation_summary": "summary",
	})
	if !result.IsError {
		t.Fatal("expected tool error without a profile")
	}
	if !strings.Contains(toolText(t, result), "No profile found at mem://tester/me.md") {
		t.Errorf("got: %s", toolText(t, result))
	}
}

func TestClaudeReflect_FirstReflection(t *testing.T) {
	deps, _, _ := newTestDeps(t)

	text := toolText(t, callTool(t, mcpClaudeReflect(deps), "claude_reflect", map[string]interface{}{
		"model_id":             "Claude Opus 4.6",
		"conversation_summary": "Helped debug a race in the scheduler.",
	}))
	if !strings.Contains(text, "claude-opus-4-6") {
		t.Errorf("model id not normalized: %s", text[:min(len(text), 120)])
	}
	if !strings.Contains(text, "first self-reflection") {
		t.Error("missing first-reflection framing")
	}
}

func TestClaudeReflect_UsesStoredProfile(t *testing.T) {
	deps, _, models := newTestDeps(t)
	models.Write(context.Background(), "tester", "claude-opus-4-6",
		document.SelfTemplate("claude-opus-4-6", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	text := toolText(t, callTool(t, mcpClaudeReflect(deps), "claude_reflect", map[string]interface{}{
		"model_id":             "claude-opus-4-6",
		"conversation_summary": "summary",
	}))
	if strings.Contains(text, "first self-reflection") {
		t.Error("existing profile must not get first-reflection framing")
	}
	if !strings.Contains(text, "## Open Questions") {
		t.Error("stored profile not embedded")
	}
}

func TestSaveToClaudeProfile_NormalizesModelID(t *testing.T) {
	deps, _, models := newTestDeps(t)

	result := callTool(t, mcpSaveToClaudeProfile(deps), "save_to_claude_profile", map[string]interface{}{
		"model_id": "Claude Opus 4.6",
		"section":  "Working Positions",
		"content":  "Prefer explicit errors over panics",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	saved, ok := models.data["tester"]["claude-opus-4-6"]
	if !ok {
		t.Fatalf("profile stored under wrong key: %v", models.data["tester"])
	}
	if !strings.Contains(saved, "Model: claude-opus-4-6") {
		t.Errorf("template header missing:\n%s", saved)
	}
	if !strings.Contains(saved, "- Prefer explicit errors over panics") {
		t.Errorf("bullet missing:\n%s", saved)
	}
	if !strings.Contains(saved, "Created: 2026-08-28") {
		t.Errorf("creation date not stamped:\n%s", saved)
	}
}

func TestSaveToClaudeProfile_RejectsUserSection(t *testing.T) {
	deps, _, _ := newTestDeps(t)

	result := callTool(t, mcpSaveToClaudeProfile(deps), "save_to_claude_profile", map[string]interface{}{
		"model_id": "claude-opus-4-6",
		"section":  "Pet Peeves",
		"content":  "anything",
	})
	if !result.IsError {
		t.Fatal("user sections are not valid self-profile sections")
	}
	if !strings.Contains(toolText(t, result), `Invalid section: "Pet Peeves"`) {
		t.Errorf("got: %s", toolText(t, result))
	}
}

func TestRemoveFromClaudeProfile_NoProfile(t *testing.T) {
	deps, _, _ := newTestDeps(t)

	result := callTool(t, mcpRemoveFromClaudeProfile(deps), "remove_from_claude_profile", map[string]interface{}{
		"model_id":     "claude-opus-4-6",
		"line_content": "anything",
	})
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if got := toolText(t, result); got != `No Claude profile found for model "claude-opus-4-6"` {
		t.Errorf("got: %s", got)
	}
}

func TestRemoveFromClaudeProfile_RoundTrip(t *testing.T) {
	deps, _, models := newTestDeps(t)

	callTool(t, mcpSaveToClaudeProfile(deps), "save_to_claude_profile", map[string]interface{}{
		"model_id": "claude-opus-4-6",
		"section":  "Corrections",
		"content":  "(2026-08-28) Misread the mutex contract",
	})

	result := callTool(t, mcpRemoveFromClaudeProfile(deps), "remove_from_claude_profile", map[string]interface{}{
		"model_id":     "claude-opus-4-6",
		"line_content": "(2026-08-28) Misread the mutex contract",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if strings.Contains(models.data["tester"]["claude-opus-4-6"], "Misread the mutex contract") {
		t.Error("entry still present after removal")
	}
}

func TestListClaudeProfiles_Empty(t *testing.T) {
	deps, _, _ := newTestDeps(t)

	text := toolText(t, callTool(t, mcpListClaudeProfiles(deps), "list_claude_profiles", nil))
	if text != "No Claude self-profiles found." {
		t.Errorf("got: %s", text)
	}
}

func TestListClaudeProfiles_Formats(t *testing.T) {
	deps, _, models := newTestDeps(t)
	models.Write(context.Background(), "tester", "claude-opus-4-6", strings.Repeat("x", 2048))

	text := toolText(t, callTool(t, mcpListClaudeProfiles(deps), "list_claude_profiles", nil))
	if !strings.Contains(text, "1 profile(s) found") {
		t.Errorf("missing count: %s", text)
	}
	if !strings.Contains(text, "**claude-opus-4-6**") || !strings.Contains(text, "2.0 KB") {
		t.Errorf("missing entry details: %s", text)
	}
	if !strings.Contains(text, "2026-08-28") {
		t.Errorf("missing last-modified date: %s", text)
	}
}

func TestReadClaudeProfile(t *testing.T) {
	deps, _, models := newTestDeps(t)
	models.Write(context.Background(), "tester", "claude-opus-4-6", "# Claude Self-Profile: claude-opus-4-6\n\n## Corrections\n- entry\n")

	text := toolText(t, callTool(t, mcpReadClaudeProfile(deps), "read_claude_profile", map[string]interface{}{
		"model_id": "claude-opus-4-6",
	}))
	if !strings.HasPrefix(text, "# Claude Self-Profile: claude-opus-4-6\n\n---\n\n") {
		t.Errorf("missing wrapper: %s", text[:min(len(text), 80)])
	}
	if !strings.Contains(text, "- entry") {
		t.Error("profile body missing")
	}
}

func TestReadClaudeProfile_Missing(t *testing.T) {
	deps, _, _ := newTestDeps(t)

	result := callTool(t, mcpReadClaudeProfile(deps), "read_claude_profile", map[string]interface{}{
		"model_id": "claude-opus-4-6",
	})
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if !strings.Contains(toolText(t, result), `No Claude self-profile found for model "claude-opus-4-6"`) {
		t.Errorf("got: %s", toolText(t, result))
	}
}

func TestRequestUserID_PrefersContextIdentity(t *testing.T) {
	deps, profiles, _ := newTestDeps(t)
	ctx := WithUserID(context.Background(), "oid-123")

	handler := mcpSaveToProfile(deps)
	result, err := handler(ctx, makeCallToolRequest("save_to_profile", map[string]interface{}{
		"section": "Identity",
		"content": "Works at a fintech",
	}))
	if err != nil || result.IsError {
		t.Fatalf("unexpected error: %v %v", err, result)
	}
	if _, ok := profiles.data["oid-123"]; !ok {
		t.Errorf("profile written under wrong namespace: %v", mapsKeys(profiles.data))
	}
}

func mapsKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
