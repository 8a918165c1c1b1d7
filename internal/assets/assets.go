// Package assets provides the static HTML served by the operator-facing
// health page and API documentation endpoint.
package assets

import (
	"bytes"
	"html"
	"html/template"
	"regexp"
)

// versionSanitizer matches the characters SanitizeVersion removes from the version string.
// This prevents XSS via build-time ldflags injection.
// Only allows alphanumeric characters, dots, dashes, underscores, and plus signs.
var versionSanitizer = regexp.MustCompile(`[^a-zA-Z0-9.\-_+]`)

// SanitizeVersion sanitizes a version string to prevent XSS attacks.
// Returns "unknown" if the result is empty after sanitization.
func SanitizeVersion(version string) string {
	// First HTML escape, then remove any remaining suspicious characters
	escaped := html.EscapeString(version)
	sanitized := versionSanitizer.ReplaceAllString(escaped, "")
	if sanitized == "" {
		return "unknown"
	}
	// Limit length to prevent DoS via extremely long version strings
	if len(sanitized) > 100 {
		sanitized = sanitized[:100]
	}
	return sanitized
}

// HealthPageData contains the data for rendering the health page.
type HealthPageData struct {
	Version   string
	GoVersion string
	Uptime    string
	PoolSize  int
	Sessions  int
}

// healthPageTemplate is the pre-compiled health page template using html/template
// for automatic XSS protection.
var healthPageTemplate = template.Must(template.New("health").Parse(healthPageHTML))

// RenderHealthPage renders the health page with the given data.
// Uses html/template for automatic XSS escaping of all values.
func RenderHealthPage(data HealthPageData) (string, error) {
	// Pre-sanitize version as defense in depth
	data.Version = SanitizeVersion(data.Version)

	var buf bytes.Buffer
	if err := healthPageTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// healthPageHTML is the template source for the health page.
// SECURITY: This template uses html/template which auto-escapes all values.
// Additionally, the Version field is pre-sanitized before rendering.
const healthPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Helmsman Health</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: linear-gradient(135deg, #1a1a2e 0%, #16213e 100%);
            color: #e0e0e0;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
            margin: 0;
        }
        .container {
            text-align: center;
            padding: 2rem;
            background: rgba(255,255,255,0.05);
            border-radius: 16px;
            backdrop-filter: blur(10px);
            box-shadow: 0 8px 32px rgba(0,0,0,0.3);
            max-width: 500px;
        }
        h1 {
            color: #00d9ff;
            margin-bottom: 0.5rem;
            font-size: 2.5rem;
        }
        .subtitle {
            color: #888;
            margin-bottom: 2rem;
        }
        .status {
            display: inline-flex;
            align-items: center;
            gap: 0.5rem;
            padding: 0.75rem 1.5rem;
            background: rgba(0, 255, 128, 0.1);
            border: 1px solid rgba(0, 255, 128, 0.3);
            border-radius: 8px;
            color: #00ff80;
            font-weight: 600;
            margin-bottom: 1.5rem;
        }
        .status::before {
            content: '';
            width: 10px;
            height: 10px;
            background: #00ff80;
            border-radius: 50%;
            animation: pulse 2s infinite;
        }
        @keyframes pulse {
            0%, 100% { opacity: 1; }
            50% { opacity: 0.5; }
        }
        .info {
            text-align: left;
            background: rgba(0,0,0,0.2);
            padding: 1rem;
            border-radius: 8px;
            font-family: monospace;
            font-size: 0.9rem;
        }
        .info div {
            padding: 0.25rem 0;
        }
        .label {
            color: #888;
        }
        footer {
            margin-top: 2rem;
            color: #666;
            font-size: 0.8rem;
        }
        a {
            color: #00d9ff;
            text-decoration: none;
        }
    </style>
</head>
<body>
    <div class="container">
        <h1>Helmsman</h1>
        <p class="subtitle">Browser Automation Service</p>
        <div class="status">Service Healthy</div>
        <div class="info">
            <div><span class="label">Version:</span> {{.Version}}</div>
            <div><span class="label">Go Version:</span> {{.GoVersion}}</div>
            <div><span class="label">Uptime:</span> {{.Uptime}}</div>
            <div><span class="label">Pool Size:</span> {{.PoolSize}}</div>
            <div><span class="label">Sessions:</span> {{.Sessions}}</div>
        </div>
    </div>
</body>
</html>`

// APIDocumentation is the plaintext reference served from GET /v1/docs.
var APIDocumentation = `# Helmsman API Documentation

## Overview
Helmsman orchestrates multi-tenant headless-browser sessions: create a
session, then drive it through navigate/extract/interact/screenshot/
detect-captcha/batch operations.

## Endpoints

### POST /v1/sessions
Create a new browser session.

### GET /v1/sessions
List active sessions.

### GET /v1/sessions/{id}
Fetch a session's status.

### DELETE /v1/sessions/{id}
Destroy a session and free its resources.

### GET /v1/sessions/{id}/stats
Fetch a session's request/page/error counters.

### POST /v1/sessions/{id}/navigate
Navigate the session's page to a URL.

**Request:**
` + "```json" + `
{
    "url": "https://example.com",
    "wait_until": "load"
}
` + "```" + `

### POST /v1/sessions/{id}/extract
Extract content from the current page.

### POST /v1/sessions/{id}/detect-captcha
Run the CAPTCHA/bot-challenge detection heuristic against the current page.

### POST /v1/sessions/{id}/interact
Click, type, select, scroll, or hover over an element.

### POST /v1/sessions/{id}/screenshot
Capture a screenshot of the page or an element.

### POST /v1/sessions/{id}/batch
Run a sequence of operations against one session.

### GET /healthz
Health check endpoint.

### GET /metrics
Prometheus metrics endpoint.
`
