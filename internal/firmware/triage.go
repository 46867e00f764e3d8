package firmware

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sentinelops/netscout/internal/config"
)

// Keywords that mark a log line as security-relevant.
var signals = []string{
	"CVE-", "CWE-", "hardcoded", "password", "credential",
	"backdoor", "CRITICAL", "HIGH", "outdated", "deprecated",
	"weak", "private key", "telnet", "default", "root:",
	"overflow", "injection", "unauthenticated", "cleartext",
	"insecure", "vulnerability", "exploit",
}

const maxFindings = 120

var riskScorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Risk\s+Score[:\s]+(\d+(?:\.\d+)?)\s*/\s*10`),
	regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*/\s*10`),
	regexp.MustCompile(`(?i)risk\s+score[:\s]+(\d+(?:\.\d+)?)`),
}

var (
	criticalRe = regexp.MustCompile(`(?i)\bcritical\b`)
	highRe     = regexp.MustCompile(`(?i)\bhigh\b`)
)

const noFindingsReport = "## Risk Score: N/A\n\n" +
	"## Executive Summary\n\n" +
	"No security-relevant findings were extracted from the EMBA scan logs. " +
	"This could indicate a clean firmware image, or that the firmware format " +
	"was not fully supported by EMBA's analysis modules.\n\n" +
	"## Recommendation\n\n" +
	"Manual review of the firmware binary is recommended."

// TriageResult is the outcome of the AI triage stage.
type TriageResult struct {
	Report        string
	RiskScore     *float64
	FindingsCount int
	CriticalCount int
	HighCount     int
}

// Triage extracts high-signal findings from EMBA logs and asks a local
// Ollama model for a ranked risk report.
type Triage struct {
	cfg    config.FirmwareConfig
	client *http.Client
	log    *slog.Logger
}

// NewTriage builds the triage stage. Generation can take minutes, so the
// total budget is generous while the connect budget stays short.
func NewTriage(cfg config.FirmwareConfig, log *slog.Logger) *Triage {
	return &Triage{
		cfg: cfg,
		client: &http.Client{
			Timeout: 300 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 30 * time.Second}).DialContext,
			},
		},
		log: log,
	}
}

// Run performs the full triage: extract findings, generate the report,
// and save it next to the EMBA logs. When there are no findings, a canned
// report is returned and the model is never called.
func (t *Triage) Run(ctx context.Context, embaLogDir, ip, vendor, ports, mac string) (TriageResult, error) {
	findings := ExtractFindings(embaLogDir, maxFindings)

	if len(findings) == 0 {
		return TriageResult{Report: noFindingsReport}, nil
	}

	report, err := t.generate(ctx, findings, ip, vendor, ports, mac)
	if err != nil {
		return TriageResult{}, err
	}

	score := parseRiskScore(report)
	critical := len(criticalRe.FindAllString(report, -1))
	high := len(highRe.FindAllString(report, -1))

	t.log.Info("ai triage done",
		slog.Any("risk_score", score),
		slog.Int("critical", critical),
		slog.Int("high", high),
		slog.Int("report_len", len(report)),
	)

	// Keep the report next to the EMBA logs for offline review.
	reportPath := filepath.Join(embaLogDir, "ai_triage.md")
	if err := os.MkdirAll(embaLogDir, 0o755); err == nil {
		if werr := os.WriteFile(reportPath, []byte(report), 0o644); werr != nil {
			t.log.Warn("triage report save failed", slog.Any("error", werr))
		}
	}

	return TriageResult{
		Report:        report,
		RiskScore:     score,
		FindingsCount: len(findings),
		CriticalCount: critical,
		HighCount:     high,
	}, nil
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

func (t *Triage) generate(ctx context.Context, findings []string, ip, vendor, ports, mac string) (string, error) {
	prompt := buildPrompt(findings, ip, vendor, ports, mac)

	t.log.Info("ai triage start",
		slog.String("model", t.cfg.OllamaModel),
		slog.Int("findings", len(findings)),
	)

	body, err := json.Marshal(ollamaRequest{
		Model:  t.cfg.OllamaModel,
		Prompt: prompt,
		Stream: false,
		Options: map[string]any{
			"temperature": 0.2,
			"num_predict": 4096,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode triage request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(t.cfg.OllamaURL, "/")+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build triage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("ollama returned HTTP %d", resp.StatusCode)
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", fmt.Errorf("ollama returned an empty response")
	}
	return out.Response, nil
}

// ExtractFindings collects deduplicated high-signal lines from the .txt,
// .csv, and .log files under logDir, capped at maxLines.
func ExtractFindings(logDir string, maxLines int) []string {
	seen := make(map[string]struct{})
	var findings []string

	_ = filepath.WalkDir(logDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt", ".csv", ".log":
		default:
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if len(line) < 10 {
				continue
			}
			if !matchesSignal(line) {
				continue
			}
			if _, ok := seen[line]; ok {
				continue
			}
			seen[line] = struct{}{}
			findings = append(findings, line)
		}
		return nil
	})

	if len(findings) > maxLines {
		findings = findings[:maxLines]
	}
	return findings
}

func matchesSignal(line string) bool {
	lower := strings.ToLower(line)
	for _, s := range signals {
		if strings.Contains(lower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

func buildPrompt(findings []string, ip, vendor, ports, mac string) string {
	if vendor == "" {
		vendor = "Unknown"
	}
	if ports == "" {
		ports = "Unknown"
	}

	var items strings.Builder
	for _, f := range findings {
		fmt.Fprintf(&items, "- %s\n", f)
	}

	context := fmt.Sprintf(`
Device: %s at IP %s (MAC: %s)
Open ports: %s

EMBA Firmware Findings (%d items):
%s`, vendor, ip, mac, ports, len(findings), items.String())

	return fmt.Sprintf(`You are an IoT firmware security analyst. Analyse the findings below and:

1. Group by severity: Critical / High / Medium / Low
2. For Critical and High: explain root cause, realistic attack vector,
   and a concrete mitigation step (1-2 sentences each)
3. List any CVE IDs found and their CVSS scores if known
4. Give an overall risk score out of 10 with a one-line justification
5. Provide a brief executive summary (2-3 sentences) at the top

%s

Output clean Markdown with headers per severity group.
Start with: ## Risk Score: X/10
Then: ## Executive Summary
Then severity groups: ## Critical, ## High, ## Medium, ## Low
End with: ## CVE Summary (table of CVE IDs found)
`, context)
}

// parseRiskScore pulls the numeric score out of the report, trying the
// most specific pattern first. Scores outside [0, 10] are ignored.
func parseRiskScore(report string) *float64 {
	for _, re := range riskScorePatterns {
		m := re.FindStringSubmatch(report)
		if m == nil {
			continue
		}
		score, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if score >= 0 && score <= 10 {
			return &score
		}
	}
	return nil
}
