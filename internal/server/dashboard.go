package server

import (
	"bytes"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/rbias/solboard/internal/probe"
)

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 60rem; color: #222; }
table { border-collapse: collapse; width: 100%%; }
th, td { border: 1px solid #ddd; padding: 0.4rem 0.6rem; text-align: left; }
blockquote { background: #fdecea; border-left: 4px solid #d93025; margin: 1rem 0; padding: 0.5rem 1rem; }
code { font-size: 0.9em; }
</style>
</head>
<body>
%s
</body>
</html>
`

// handleDashboard handles GET /.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.sync(r)

	var report *probe.Report
	if s.health != nil {
		rep := s.health.Report()
		report = &rep
	}

	page := renderPage("Solana clusters", dashboardMarkdown(s.clustersResponse(), report))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(page); err != nil {
		slog.Debug("failed to write dashboard", "error", err)
	}
}

// dashboardMarkdown lays out the registry and the active cluster's health.
func dashboardMarkdown(clusters ClustersResponse, report *probe.Report) []byte {
	var b bytes.Buffer

	b.WriteString("# Solana clusters\n\n")

	if report != nil && report.Status == probe.StatusUnreachable {
		fmt.Fprintf(&b, "> **Error connecting to cluster %s**", escapeCell(report.Cluster.Name))
		if report.Error != "" {
			fmt.Fprintf(&b, ": %s", escapeCell(report.Error))
		}
		b.WriteString("\n\n")
	}

	b.WriteString("| | Name | Network | Endpoint | Explorer |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, c := range clusters.Clusters {
		marker := ""
		if c.Name == clusters.ActiveName {
			marker = "**active**"
		}
		explorerLink := ""
		if c.ExplorerURL != "" {
			explorerLink = fmt.Sprintf("[open](%s)", c.ExplorerURL)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			marker, escapeCell(c.Name), c.Network.String(), escapeCell(c.Endpoint), explorerLink)
	}
	b.WriteString("\n")

	if report != nil {
		b.WriteString(healthLine(*report))
		b.WriteString("\n")
	}

	return b.Bytes()
}

func healthLine(r probe.Report) string {
	switch r.Status {
	case probe.StatusHealthy:
		line := fmt.Sprintf("Health: **%s** is healthy", escapeCell(r.Cluster.Name))
		if r.Version != nil && r.Version.SolanaCore != "" {
			line += fmt.Sprintf(" (solana-core %s)", escapeCell(r.Version.SolanaCore))
		}
		return line + "\n"
	case probe.StatusChecking:
		return fmt.Sprintf("Health: checking **%s**...\n", escapeCell(r.Cluster.Name))
	case probe.StatusUnreachable:
		return fmt.Sprintf("Health: **%s** is unreachable\n", escapeCell(r.Cluster.Name))
	default:
		return "Health: unknown\n"
	}
}

// escapeCell keeps user-supplied text from breaking the table or injecting
// markdown.
func escapeCell(s string) string {
	replacer := strings.NewReplacer(
		"<", "&lt;",
		">", "&gt;",
		"|", `\|`,
		"*", `\*`,
		"_", `\_`,
		"[", `\[`,
		"]", `\]`,
		"`", `\`+"`",
		"\n", " ",
		"\r", " ",
	)
	return replacer.Replace(s)
}

// renderPage converts markdown to a standalone HTML page. Raw HTML in the
// markdown is dropped.
func renderPage(title string, md []byte) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank | mdhtml.SkipHTML,
	})
	body := markdown.ToHTML(md, p, renderer)
	return []byte(fmt.Sprintf(pageTemplate, html.EscapeString(title), body))
}
