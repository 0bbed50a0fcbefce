package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hearthside-ai/hearthside/internal/snapshot"
)

func (e *Executor) createDashboard(ctx context.Context, args map[string]any) (map[string]any, error) {
	urlPath := argString(args, "url_path")
	title := argString(args, "title")
	views := argList(args, "views")
	if urlPath == "" || title == "" {
		return nil, fmt.Errorf("url_path and title are required")
	}

	if _, err := e.ws.CreateDashboard(ctx, urlPath, title, argString(args, "icon")); err != nil {
		return nil, fmt.Errorf("create dashboard '%s': %w", urlPath, err)
	}
	if err := e.ws.SaveDashboardConfig(ctx, urlPath, map[string]any{"views": views}); err != nil {
		return nil, fmt.Errorf("save dashboard config '%s': %w", urlPath, err)
	}

	payload := map[string]any{
		"status":      "success",
		"url_path":    urlPath,
		"views_count": len(views),
		"message":     fmt.Sprintf("Dashboard '%s' created. It appears in the sidebar at /%s.", title, urlPath),
	}
	if len(views) == 0 {
		payload["warning"] = "The dashboard has no views. Add views with update_dashboard or it will render empty."
	}
	return payload, nil
}

func (e *Executor) updateDashboard(ctx context.Context, args map[string]any) (map[string]any, error) {
	urlPath := argString(args, "url_path")
	views := argList(args, "views")
	if urlPath == "" {
		return nil, fmt.Errorf("url_path is required")
	}

	cfg, err := e.ws.GetDashboardConfig(ctx, urlPath)
	if err != nil {
		// A dashboard can exist with no stored config yet.
		e.logger.Debug("no existing dashboard config", "url_path", urlPath, "error", err)
		cfg = map[string]any{}
	}
	cfg["views"] = views
	if title := argString(args, "title"); title != "" {
		cfg["title"] = title
	}

	if err := e.ws.SaveDashboardConfig(ctx, urlPath, cfg); err != nil {
		return nil, fmt.Errorf("update dashboard '%s': %w", urlPath, err)
	}

	payload := map[string]any{
		"status":      "success",
		"url_path":    urlPath,
		"views_count": len(views),
		"message":     fmt.Sprintf("Dashboard '%s' updated with %d view(s).", urlPath, len(views)),
	}
	if len(views) == 0 {
		payload["warning"] = "The update removed every view. Send the complete views array, not a partial one."
	}
	return payload, nil
}

func (e *Executor) getDashboardConfig(ctx context.Context, args map[string]any) (map[string]any, error) {
	urlPath := argString(args, "url_path")

	if urlPath == "" {
		dashboards, err := e.ws.ListDashboards(ctx)
		if err != nil {
			return nil, fmt.Errorf("list dashboards: %w", err)
		}
		list := make([]map[string]any, 0, len(dashboards))
		for _, d := range dashboards {
			list = append(list, map[string]any{
				"url_path": d.URLPath,
				"title":    d.Title,
				"mode":     d.Mode,
			})
		}
		return map[string]any{"count": len(list), "dashboards": list}, nil
	}

	cfg, err := e.ws.GetDashboardConfig(ctx, urlPath)
	if err != nil {
		return nil, fmt.Errorf("get dashboard config '%s': %w", urlPath, err)
	}
	views, _ := cfg["views"].([]any)
	return map[string]any{
		"url_path":    urlPath,
		"views_count": len(views),
		"config":      cfg,
	}, nil
}

func (e *Executor) deleteDashboard(ctx context.Context, args map[string]any) (map[string]any, error) {
	urlPath := argString(args, "url_path")
	if urlPath == "" {
		return nil, fmt.Errorf("url_path is required")
	}

	dashboards, err := e.ws.ListDashboards(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dashboards: %w", err)
	}
	for _, d := range dashboards {
		if d.URLPath == urlPath {
			if err := e.ws.DeleteDashboard(ctx, d.ID); err != nil {
				return nil, fmt.Errorf("delete dashboard '%s': %w", urlPath, err)
			}
			return map[string]any{
				"status":  "success",
				"message": fmt.Sprintf("Dashboard '%s' deleted.", urlPath),
			}, nil
		}
	}
	return nil, fmt.Errorf("dashboard '%s' not found", urlPath)
}

// htmlDraft accumulates a chunked HTML document across tool calls.
type htmlDraft struct {
	buf strings.Builder
}

// createHTMLDashboard publishes a full HTML document as a sidebar
// dashboard: the file is served from the config www directory and
// wrapped in a panel view with a single iframe card. Large documents
// arrive chunked via mode=start/append/finish.
func (e *Executor) createHTMLDashboard(ctx context.Context, args map[string]any, sess *SessionContext) (map[string]any, error) {
	urlPath := argString(args, "url_path")
	title := argString(args, "title")
	if urlPath == "" || title == "" {
		return nil, fmt.Errorf("url_path and title are required")
	}
	slug := slugify(urlPath)
	html := args["html"]
	chunk, _ := html.(string)

	mode := argString(args, "mode")
	if mode == "" {
		mode = "single"
	}

	if sess.drafts == nil {
		sess.drafts = map[string]*htmlDraft{}
	}

	switch mode {
	case "start":
		draft := &htmlDraft{}
		draft.buf.WriteString(chunk)
		sess.drafts[slug] = draft
		return map[string]any{
			"status":         "draft_started",
			"received_chars": len(chunk),
			"message":        "Draft started. Send the remaining HTML with mode=append, then mode=finish to publish.",
		}, nil
	case "append":
		draft := sess.drafts[slug]
		if draft == nil {
			return nil, fmt.Errorf("no draft in progress for '%s': start one with mode=start", slug)
		}
		draft.buf.WriteString(chunk)
		return map[string]any{
			"status":         "draft_appended",
			"received_chars": len(chunk),
			"total_chars":    draft.buf.Len(),
		}, nil
	case "finish":
		draft := sess.drafts[slug]
		if draft == nil {
			return nil, fmt.Errorf("no draft in progress for '%s': start one with mode=start", slug)
		}
		draft.buf.WriteString(chunk)
		chunk = draft.buf.String()
		delete(sess.drafts, slug)
	case "single":
		// chunk already holds the complete document
	default:
		return nil, fmt.Errorf("unknown mode '%s': use single, start, append or finish", mode)
	}

	if strings.TrimSpace(chunk) == "" {
		return nil, fmt.Errorf("html is required")
	}
	return e.publishHTMLDashboard(ctx, slug, title, chunk, args)
}

func (e *Executor) publishHTMLDashboard(ctx context.Context, slug, title, html string, args map[string]any) (map[string]any, error) {
	if e.configDir == "" {
		return nil, fmt.Errorf("%s", e.msgs.ConfigDirUnset)
	}
	html = e.expandPlaceholders(html, title, args)

	// Served by HA itself: config/www maps to /local.
	dir := filepath.Join(e.configDir, "www", "hearthside")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dashboard dir: %w", err)
	}
	filename := slug + ".html"
	if err := snapshot.WriteFileAtomic(filepath.Join(dir, filename), []byte(html), 0o644); err != nil {
		return nil, fmt.Errorf("write dashboard file: %w", err)
	}
	localURL := "/local/hearthside/" + filename

	sidebar := true
	if _, err := e.ws.CreateDashboard(ctx, slug, title, "mdi:web"); err != nil {
		// Republishing an existing dashboard: the registry entry is
		// already there, only the config save matters.
		e.logger.Debug("dashboard registry create failed", "url_path", slug, "error", err)
	}
	cfg := map[string]any{
		"views": []any{map[string]any{
			"title": title,
			"path":  slug,
			"type":  "panel",
			"cards": []any{map[string]any{"type": "iframe", "url": localURL}},
		}},
	}
	if err := e.ws.SaveDashboardConfig(ctx, slug, cfg); err != nil {
		e.logger.Warn("dashboard sidebar integration failed", "url_path", slug, "error", err)
		sidebar = false
	}

	message := fmt.Sprintf("Dashboard '%s' created. It appears in the sidebar at /%s.", title, slug)
	if !sidebar {
		message = fmt.Sprintf("Dashboard file '%s' is ready at %s, but sidebar integration failed.", filename, localURL)
	}
	return map[string]any{
		"status":       "success",
		"url_path":     slug,
		"filename":     filename,
		"html_url":     localURL,
		"html_chars":   len(html),
		"sidebar":      sidebar,
		"message":      message,
		"display_hint": "Do not show the HTML source to the user; just confirm where to find the dashboard.",
	}, nil
}

const defaultAccent = "#667eea"

// Theme overrides injected at __THEME_CSS__. "auto" leaves the page's
// prefers-color-scheme rules in charge.
var themeCSS = map[string]string{
	"dark":  ":root{--bg:#0f172a;--bg2:#1e293b;--text:#e2e8f0;--text2:#94a3b8;--card:rgba(30,41,59,.85);--border:#334155}",
	"light": ":root{--bg:#f0f2f5;--bg2:#fff;--text:#1a1a2e;--text2:#6b7280;--card:rgba(255,255,255,.85);--border:#e2e8f0}",
}

// expandPlaceholders fills the template tokens the prompt tells the
// model to use, so the published page carries real values instead of
// literal __TOKEN__ text.
func (e *Executor) expandPlaceholders(html, title string, args map[string]any) string {
	accent := argString(args, "accent_color")
	if accent == "" {
		accent = defaultAccent
	}

	var ids []string
	for _, v := range argList(args, "entities") {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	entitiesJSON, err := json.Marshal(ids)
	if err != nil || len(ids) == 0 {
		entitiesJSON = []byte("[]")
	}

	return strings.NewReplacer(
		"__TITLE__", title,
		"__ENTITIES_JSON__", string(entitiesJSON),
		"__ACCENT__", accent,
		"__ACCENT_RGB__", hexToRGB(accent),
		"__THEME_CSS__", themeCSS[argString(args, "theme")],
		"__LANG__", e.lang,
	).Replace(html)
}

// hexToRGB renders "#rrggbb" as "r,g,b" for rgba() expressions.
func hexToRGB(hex string) string {
	h := strings.TrimPrefix(hex, "#")
	if len(h) != 6 {
		return "102,126,234"
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return "102,126,234"
	}
	return fmt.Sprintf("%d,%d,%d", (v>>16)&0xff, (v>>8)&0xff, v&0xff)
}

// slugify normalizes a name into a URL path segment.
func slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '.':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
