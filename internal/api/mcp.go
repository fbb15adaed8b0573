package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/memoryd/internal/document"
	"github.com/kalambet/memoryd/internal/reflection"
	"github.com/kalambet/memoryd/internal/storage"
)

// Deps holds dependencies for the MCP tool surface. One tool table serves
// both deployments: the stdio transport resolves every call to
// DefaultUserID, the HTTP transport injects a verified per-request user id
// into the context.
type Deps struct {
	Profiles storage.ProfileStore
	Models   storage.ModelStore
	Prompts  *reflection.Builder
	Now      func() time.Time

	// DefaultUserID is the namespace used when the context carries no
	// identity (stdio mode). May be empty for local file storage.
	DefaultUserID string
}

// NewMCPServer creates an MCP server with all memoryd tools registered.
func NewMCPServer(deps Deps) *server.MCPServer {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Prompts == nil {
		deps.Prompts = reflection.NewBuilder()
	}

	s := server.NewMCPServer(
		"memoryd",
		"0.1.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("memoryd — persistent personal memory: load, reflect on, and edit markdown profiles."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("load_profile",
			mcp.WithDescription("Load the personal profile (me.md) into the current session context. "+
				"Use this to learn the user's identity, interests, goals, and preferences."),
		),
		mcpLoadProfile(deps),
	)

	s.AddTool(
		mcp.NewTool("reflect",
			mcp.WithDescription("Analyze the current conversation and propose new facts to add to the "+
				"personal profile. Each proposed addition is shown for approval before being saved."),
			mcp.WithString("conversation_summary",
				mcp.Description("A summary of the current conversation to analyze for new learnings"),
				mcp.Required(),
			),
		),
		mcpReflect(deps),
	)

	s.AddTool(
		mcp.NewTool("save_to_profile",
			mcp.WithDescription("Save an approved fact or preference to a specific section of the profile. "+
				"Use this after the user approves a proposed addition from reflect."),
			mcp.WithString("section",
				mcp.Description("The profile section to add the content to"),
				mcp.Required(),
				mcp.Enum(document.UserSections...),
			),
			mcp.WithString("content",
				mcp.Description("The content to add (will be formatted as a bullet point)"),
				mcp.Required(),
			),
		),
		mcpSaveToProfile(deps),
	)

	s.AddTool(
		mcp.NewTool("remove_from_profile",
			mcp.WithDescription("Remove a stale or outdated item from the profile. "+
				"Use this after the user approves a proposed removal from reflect."),
			mcp.WithString("line_content",
				mcp.Description("The exact content of the line to remove (without the leading '- ' bullet point)"),
				mcp.Required(),
			),
		),
		mcpRemoveFromProfile(deps),
	)

	s.AddTool(
		mcp.NewTool("claude_reflect",
			mcp.WithDescription("Reflect on the current conversation from the assistant's own perspective "+
				"and propose entries for the model's self-profile."),
			mcp.WithString("model_id",
				mcp.Description("The model identifier (e.g. \"Claude Opus 4.6\")"),
				mcp.Required(),
			),
			mcp.WithString("conversation_summary",
				mcp.Description("A summary of the current conversation to reflect on"),
				mcp.Required(),
			),
		),
		mcpClaudeReflect(deps),
	)

	s.AddTool(
		mcp.NewTool("save_to_claude_profile",
			mcp.WithDescription("Write a self-reflection entry to a section of the model's self-profile."),
			mcp.WithString("model_id",
				mcp.Description("The model identifier"),
				mcp.Required(),
			),
			mcp.WithString("section",
				mcp.Description("The self-profile section to add the content to"),
				mcp.Required(),
				mcp.Enum(document.SelfSections...),
			),
			mcp.WithString("content",
				mcp.Description("The content to add (will be formatted as a bullet point)"),
				mcp.Required(),
			),
		),
		mcpSaveToClaudeProfile(deps),
	)

	s.AddTool(
		mcp.NewTool("remove_from_claude_profile",
			mcp.WithDescription("Remove an entry from the model's self-profile."),
			mcp.WithString("model_id",
				mcp.Description("The model identifier"),
				mcp.Required(),
			),
			mcp.WithString("line_content",
				mcp.Description("The exact content of the line to remove (without the leading '- ' bullet point)"),
				mcp.Required(),
			),
		),
		mcpRemoveFromClaudeProfile(deps),
	)

	s.AddTool(
		mcp.NewTool("list_claude_profiles",
			mcp.WithDescription("List all stored model self-profiles with size and last-modified date."),
		),
		mcpListClaudeProfiles(deps),
	)

	s.AddTool(
		mcp.NewTool("read_claude_profile",
			mcp.WithDescription("Read a model's self-profile in full."),
			mcp.WithString("model_id",
				mcp.Description("The model identifier"),
				mcp.Required(),
			),
		),
		mcpReadClaudeProfile(deps),
	)

	return s
}

// requestUserID resolves the storage namespace for a tool call: the
// verified identity from the HTTP transport when present, the configured
// default otherwise.
func requestUserID(ctx context.Context, deps Deps) string {
	if id, ok := UserIDFrom(ctx); ok {
		return id
	}
	return deps.DefaultUserID
}

func mcpLoadProfile(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		uid := requestUserID(ctx, deps)

		exists, err := deps.Profiles.Exists(ctx, uid)
		if err != nil {
			return mcpError("Error loading profile: " + err.Error()), nil
		}
		if !exists {
			return mcpText(fmt.Sprintf(
				"No profile found at %s\n\nTo create one, save a first entry with the save_to_profile tool — the profile template is instantiated automatically.",
				deps.Profiles.Location(uid),
			)), nil
		}

		content, err := deps.Profiles.Read(ctx, uid)
		if err != nil {
			return mcpError("Error loading profile: " + err.Error()), nil
		}
		return mcpText("# Personal Profile Loaded\n\nThe following profile has been loaded into context:\n\n---\n\n" + content), nil
	}
}

func mcpReflect(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		summary, err := req.RequireString("conversation_summary")
		if err != nil || summary == "" {
			return mcpError("conversation_summary is required"), nil
		}
		uid := requestUserID(ctx, deps)

		exists, err := deps.Profiles.Exists(ctx, uid)
		if err != nil {
			return mcpError("Error during reflection: " + err.Error()), nil
		}
		if !exists {
			return mcpError(fmt.Sprintf(
				"No profile found at %s\n\nCreate one first by saving an entry with the save_to_profile tool.",
				deps.Profiles.Location(uid),
			)), nil
		}

		content, err := deps.Profiles.Read(ctx, uid)
		if err != nil {
			return mcpError("Error during reflection: " + err.Error()), nil
		}
		return mcpText(deps.Prompts.UserPrompt(summary, content)), nil
	}
}

func mcpSaveToProfile(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		section, err := req.RequireString("section")
		if err != nil || section == "" {
			return mcpError("section is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil || content == "" {
			return mcpError("content is required"), nil
		}
		if !document.IsUserSection(section) {
			return mcpError(fmt.Sprintf("Invalid section: %q. Valid sections: %s",
				section, strings.Join(document.UserSections, ", "))), nil
		}
		uid := requestUserID(ctx, deps)

		profile, err := loadOrTemplate(ctx, deps.Profiles, uid, document.UserTemplate)
		if err != nil {
			return mcpError("Error saving to profile: " + err.Error()), nil
		}

		updated, err := document.AppendBullet(profile, section, content)
		if err != nil {
			var notFound *document.SectionNotFoundError
			if errors.As(err, &notFound) {
				return mcpError(fmt.Sprintf("Section %q not found in profile", section)), nil
			}
			return mcpError("Error saving to profile: " + err.Error()), nil
		}

		if err := deps.Profiles.Write(ctx, uid, updated); err != nil {
			return mcpError("Error saving to profile: " + err.Error()), nil
		}
		return mcpText(fmt.Sprintf("Added to %s: %q", section, content)), nil
	}
}

func mcpRemoveFromProfile(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		line, err := req.RequireString("line_content")
		if err != nil || line == "" {
			return mcpError("line_content is required"), nil
		}
		uid := requestUserID(ctx, deps)

		exists, err := deps.Profiles.Exists(ctx, uid)
		if err != nil {
			return mcpError("Error removing from profile: " + err.Error()), nil
		}
		if !exists {
			return mcpError("No profile found at " + deps.Profiles.Location(uid)), nil
		}

		profile, err := deps.Profiles.Read(ctx, uid)
		if err != nil {
			return mcpError("Error removing from profile: " + err.Error()), nil
		}

		updated, err := document.RemoveLine(profile, line)
		if err != nil {
			var notFound *document.LineNotFoundError
			if errors.As(err, &notFound) {
				return mcpError(fmt.Sprintf("Could not find line in profile: %q", line)), nil
			}
			return mcpError("Error removing from profile: " + err.Error()), nil
		}

		if err := deps.Profiles.Write(ctx, uid, updated); err != nil {
			return mcpError("Error removing from profile: " + err.Error()), nil
		}
		return mcpText(fmt.Sprintf("Removed from profile: %q", line)), nil
	}
}

func mcpClaudeReflect(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rawID, err := req.RequireString("model_id")
		if err != nil || rawID == "" {
			return mcpError("model_id is required"), nil
		}
		summary, err := req.RequireString("conversation_summary")
		if err != nil || summary == "" {
			return mcpError("conversation_summary is required"), nil
		}
		modelID, err := document.ValidateModelID(rawID)
		if err != nil {
			return mcpError("Error during self-reflection: " + err.Error()), nil
		}
		uid := requestUserID(ctx, deps)

		exists, err := deps.Models.Exists(ctx, uid, modelID)
		if err != nil {
			return mcpError("Error during self-reflection: " + err.Error()), nil
		}
		profile := ""
		if exists {
			profile, err = deps.Models.Read(ctx, uid, modelID)
			if err != nil {
				return mcpError("Error during self-reflection: " + err.Error()), nil
			}
		}
		return mcpText(deps.Prompts.SelfPrompt(modelID, summary, profile, exists)), nil
	}
}

func mcpSaveToClaudeProfile(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rawID, err := req.RequireString("model_id")
		if err != nil || rawID == "" {
			return mcpError("model_id is required"), nil
		}
		section, err := req.RequireString("section")
		if err != nil || section == "" {
			return mcpError("section is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil || content == "" {
			return mcpError("content is required"), nil
		}
		if !document.IsSelfSection(section) {
			return mcpError(fmt.Sprintf("Invalid section: %q. Valid sections: %s",
				section, strings.Join(document.SelfSections, ", "))), nil
		}
		modelID, err := document.ValidateModelID(rawID)
		if err != nil {
			return mcpError("Error saving to Claude profile: " + err.Error()), nil
		}
		uid := requestUserID(ctx, deps)

		exists, err := deps.Models.Exists(ctx, uid, modelID)
		if err != nil {
			return mcpError("Error saving to Claude profile: " + err.Error()), nil
		}
		var profile string
		if exists {
			profile, err = deps.Models.Read(ctx, uid, modelID)
			if err != nil {
				return mcpError("Error saving to Claude profile: " + err.Error()), nil
			}
		} else {
			profile = document.SelfTemplate(modelID, deps.Now())
		}

		updated, err := document.AppendBullet(profile, section, content)
		if err != nil {
			var notFound *document.SectionNotFoundError
			if errors.As(err, &notFound) {
				return mcpError(fmt.Sprintf("Section %q not found in profile", section)), nil
			}
			return mcpError("Error saving to Claude profile: " + err.Error()), nil
		}

		if err := deps.Models.Write(ctx, uid, modelID, updated); err != nil {
			return mcpError("Error saving to Claude profile: " + err.Error()), nil
		}
		return mcpText(fmt.Sprintf("Added to %s: %q", section, content)), nil
	}
}

func mcpRemoveFromClaudeProfile(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rawID, err := req.RequireString("model_id")
		if err != nil || rawID == "" {
			return mcpError("model_id is required"), nil
		}
		line, err := req.RequireString("line_content")
		if err != nil || line == "" {
			return mcpError("line_content is required"), nil
		}
		modelID, err := document.ValidateModelID(rawID)
		if err != nil {
			return mcpError("Error removing from Claude profile: " + err.Error()), nil
		}
		uid := requestUserID(ctx, deps)

		exists, err := deps.Models.Exists(ctx, uid, modelID)
		if err != nil {
			return mcpError("Error removing from Claude profile: " + err.Error()), nil
		}
		if !exists {
			return mcpError(fmt.Sprintf("No Claude profile found for model %q", modelID)), nil
		}

		profile, err := deps.Models.Read(ctx, uid, modelID)
		if err != nil {
			return mcpError("Error removing from Claude profile: " + err.Error()), nil
		}

		updated, err := document.RemoveLine(profile, line)
		if err != nil {
			var notFound *document.LineNotFoundError
			if errors.As(err, &notFound) {
				return mcpError(fmt.Sprintf("Could not find line in Claude profile: %q", line)), nil
			}
			return mcpError("Error removing from Claude profile: " + err.Error()), nil
		}

		if err := deps.Models.Write(ctx, uid, modelID, updated); err != nil {
			return mcpError("Error removing from Claude profile: " + err.Error()), nil
		}
		return mcpText(fmt.Sprintf("Removed from Claude profile: %q", line)), nil
	}
}

func mcpListClaudeProfiles(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		uid := requestUserID(ctx, deps)

		profiles, err := deps.Models.List(ctx, uid)
		if err != nil {
			return mcpError("Error listing Claude profiles: " + err.Error()), nil
		}
		if len(profiles) == 0 {
			return mcpText("No Claude self-profiles found."), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "# Claude Self-Profiles\n\n%d profile(s) found:\n\n", len(profiles))
		for i, p := range profiles {
			if i > 0 {
				sb.WriteString("\n")
			}
			fmt.Fprintf(&sb, "- **%s** — %.1f KB, last modified %s",
				p.ModelID, float64(p.Size)/1024, p.LastModified.UTC().Format("2006-01-02"))
		}
		return mcpText(sb.String()), nil
	}
}

func mcpReadClaudeProfile(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rawID, err := req.RequireString("model_id")
		if err != nil || rawID == "" {
			return mcpError("model_id is required"), nil
		}
		modelID, err := document.ValidateModelID(rawID)
		if err != nil {
			return mcpError("Error reading Claude profile: " + err.Error()), nil
		}
		uid := requestUserID(ctx, deps)

		content, err := deps.Models.Read(ctx, uid, modelID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return mcpError(fmt.Sprintf("No Claude self-profile found for model %q.", modelID)), nil
			}
			return mcpError("Error reading Claude profile: " + err.Error()), nil
		}
		return mcpText(fmt.Sprintf("# Claude Self-Profile: %s\n\n---\n\n%s", modelID, content)), nil
	}
}

// loadOrTemplate reads the user profile, falling back to the template when
// the document does not exist yet.
func loadOrTemplate(ctx context.Context, store storage.ProfileStore, userID, template string) (string, error) {
	exists, err := store.Exists(ctx, userID)
	if err != nil {
		return "", err
	}
	if !exists {
		return template, nil
	}
	return store.Read(ctx, userID)
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
