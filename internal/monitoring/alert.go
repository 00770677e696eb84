package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

// AlertLevel is the severity of an alert.
type AlertLevel string

const (
	AlertLevelInfo     AlertLevel = "info"
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelCritical AlertLevel = "critical"
)

// Alert is one firing (or resolved) rule.
type Alert struct {
	ID         string         `json:"id"`
	RuleID     string         `json:"ruleId"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Level      AlertLevel     `json:"level"`
	Component  string         `json:"component"`
	Timestamp  time.Time      `json:"timestamp"`
	Resolved   bool           `json:"resolved"`
	ResolvedAt *time.Time     `json:"resolvedAt,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// AlertRule is evaluated on every check. Condition reports whether the
// rule fires and an optional detail appended to Message.
type AlertRule struct {
	ID            string
	Name          string
	Condition     func() (bool, string)
	Level         AlertLevel
	Component     string
	Message       string
	Cooldown      time.Duration
	LastTriggered time.Time
}

// AlertReceiver delivers triggered alerts.
type AlertReceiver interface {
	SendAlert(ctx context.Context, alert *Alert) error
}

// AlertManager evaluates rules and fans alerts out to receivers. An alert
// stays active until its rule stops firing.
type AlertManager struct {
	alerts    map[string]*Alert
	active    map[string]string // rule ID -> alert ID
	rules     []AlertRule
	receivers []AlertReceiver
	logger    *zap.Logger
	now       func() time.Time
	mu        sync.RWMutex
}

// NewAlertManager creates an alert manager without rules or receivers.
func NewAlertManager(logger *zap.Logger) *AlertManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertManager{
		alerts: make(map[string]*Alert),
		active: make(map[string]string),
		logger: logger.Named("alerts"),
		now:    time.Now,
	}
}

// AddReceiver registers a receiver.
func (am *AlertManager) AddReceiver(receiver AlertReceiver) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.receivers = append(am.receivers, receiver)
}

// AddRule registers a rule.
func (am *AlertManager) AddRule(rule AlertRule) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.rules = append(am.rules, rule)
}

// TriggerAlert records alert and sends it to every receiver. A second
// alert for a rule that is still active is dropped.
func (am *AlertManager) TriggerAlert(ctx context.Context, alert *Alert) {
	am.mu.Lock()
	if alertID, exists := am.active[alert.RuleID]; exists && alert.RuleID != "" {
		am.mu.Unlock()
		am.logger.Debug("alert already active", zap.String("alert_id", alertID))
		return
	}
	am.alerts[alert.ID] = alert
	if alert.RuleID != "" {
		am.active[alert.RuleID] = alert.ID
	}
	receivers := append([]AlertReceiver(nil), am.receivers...)
	am.mu.Unlock()

	for _, receiver := range receivers {
		if err := receiver.SendAlert(ctx, alert); err != nil {
			am.logger.Error("failed to send alert",
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
		}
	}

	am.logger.Info("alert triggered",
		zap.String("alert_id", alert.ID),
		zap.String("level", string(alert.Level)),
		zap.String("component", alert.Component),
	)
}

// ResolveAlert marks an alert resolved.
func (am *AlertManager) ResolveAlert(alertID string) {
	am.mu.Lock()
	defer am.mu.Unlock()

	alert, exists := am.alerts[alertID]
	if !exists || alert.Resolved {
		return
	}
	now := am.now()
	alert.Resolved = true
	alert.ResolvedAt = &now
	if am.active[alert.RuleID] == alertID {
		delete(am.active, alert.RuleID)
	}
	am.logger.Info("alert resolved", zap.String("alert_id", alertID))
}

// GetAlerts returns every alert, oldest first.
func (am *AlertManager) GetAlerts() []Alert {
	return am.collect(func(*Alert) bool { return true })
}

// GetActiveAlerts returns the unresolved alerts, oldest first.
func (am *AlertManager) GetActiveAlerts() []Alert {
	return am.collect(func(a *Alert) bool { return !a.Resolved })
}

func (am *AlertManager) collect(keep func(*Alert) bool) []Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	alerts := make([]Alert, 0, len(am.alerts))
	for _, alert := range am.alerts {
		if keep(alert) {
			alerts = append(alerts, *alert)
		}
	}
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].Timestamp.Before(alerts[j].Timestamp)
	})
	return alerts
}

// CheckRules evaluates every rule once.
func (am *AlertManager) CheckRules(ctx context.Context) {
	am.mu.RLock()
	rules := make([]AlertRule, len(am.rules))
	copy(rules, am.rules)
	am.mu.RUnlock()

	for _, rule := range rules {
		firing, detail := rule.Condition()
		if !firing {
			am.mu.RLock()
			alertID, active := am.active[rule.ID]
			am.mu.RUnlock()
			if active {
				am.ResolveAlert(alertID)
			}
			continue
		}

		now := am.now()
		if now.Sub(rule.LastTriggered) < rule.Cooldown {
			continue
		}

		message := rule.Message
		if detail != "" {
			message += ": " + detail
		}
		am.TriggerAlert(ctx, &Alert{
			ID:        fmt.Sprintf("%s_%d", rule.ID, now.UnixNano()),
			RuleID:    rule.ID,
			Title:     rule.Name,
			Message:   message,
			Level:     rule.Level,
			Component: rule.Component,
			Timestamp: now,
		})

		am.mu.Lock()
		for i, r := range am.rules {
			if r.ID == rule.ID {
				am.rules[i].LastTriggered = now
				break
			}
		}
		am.mu.Unlock()
	}
}

// StartMonitoring checks the rules every interval until ctx is done.
func (am *AlertManager) StartMonitoring(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			am.CheckRules(ctx)
		}
	}
}

// ========== Built-in rules ==========

// HealthChecker is anything that can report storage health.
type HealthChecker interface {
	Health() error
}

// DatabaseConnectionRule fires while the store health check fails.
func DatabaseConnectionRule(store HealthChecker) AlertRule {
	return AlertRule{
		ID:   "database_connection",
		Name: "Database Connection",
		Condition: func() (bool, string) {
			if err := store.Health(); err != nil {
				return true, err.Error()
			}
			return false, ""
		},
		Level:     AlertLevelCritical,
		Component: "database",
		Message:   "Database connection failed",
		Cooldown:  time.Minute,
	}
}

// SyncFailureRule fires when at least threshold sync runs failed since
// the previous check. The detail lists the failures by outcome.
func SyncFailureRule(runs *prometheus.CounterVec, threshold int) AlertRule {
	delta := newCounterDelta(runs, "outcome", func(outcome string) bool { return outcome != "ok" })
	return AlertRule{
		ID:   "sync_failures",
		Name: "Mailbox Sync Failures",
		Condition: func() (bool, string) {
			total, byLabel := delta.next()
			return total >= float64(threshold), formatCounts(byLabel)
		},
		Level:     AlertLevelWarning,
		Component: "sync",
		Message:   fmt.Sprintf("%d or more mailbox syncs failed", threshold),
		Cooldown:  5 * time.Minute,
	}
}

// ExtractionFailureRule fires when at least threshold generator calls
// failed since the previous check. The detail lists failures by category.
func ExtractionFailureRule(failures *prometheus.CounterVec, threshold int) AlertRule {
	delta := newCounterDelta(failures, "category", nil)
	return AlertRule{
		ID:   "extraction_failures",
		Name: "AI Extraction Failures",
		Condition: func() (bool, string) {
			total, byLabel := delta.next()
			return total >= float64(threshold), formatCounts(byLabel)
		},
		Level:     AlertLevelWarning,
		Component: "extraction",
		Message:   fmt.Sprintf("%d or more extraction calls failed", threshold),
		Cooldown:  5 * time.Minute,
	}
}

// counterDelta reports how much a counter vector grew between calls,
// grouped by one label.
type counterDelta struct {
	vec   *prometheus.CounterVec
	label string
	keep  func(string) bool

	mu   sync.Mutex
	last map[string]float64
}

func newCounterDelta(vec *prometheus.CounterVec, label string, keep func(string) bool) *counterDelta {
	d := &counterDelta{vec: vec, label: label, keep: keep}
	d.last = d.read()
	return d
}

func (d *counterDelta) next() (float64, map[string]float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := d.read()
	var total float64
	grown := make(map[string]float64)
	for key, value := range current {
		if diff := value - d.last[key]; diff > 0 {
			grown[key] = diff
			total += diff
		}
	}
	d.last = current
	return total, grown
}

// read sums the vector by label value.
func (d *counterDelta) read() map[string]float64 {
	sums := make(map[string]float64)
	ch := make(chan prometheus.Metric, 32)
	go func() {
		d.vec.Collect(ch)
		close(ch)
	}()
	for metric := range ch {
		var m dto.Metric
		if err := metric.Write(&m); err != nil {
			continue
		}
		var value string
		for _, pair := range m.GetLabel() {
			if pair.GetName() == d.label {
				value = pair.GetValue()
			}
		}
		if d.keep != nil && !d.keep(value) {
			continue
		}
		sums[value] += m.GetCounter().GetValue()
	}
	return sums
}

func formatCounts(counts map[string]float64) string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.0f", key, counts[key]))
	}
	return strings.Join(parts, " ")
}

// ========== Receivers ==========

// LogAlertReceiver writes alerts to the logger at a level matching theirs.
type LogAlertReceiver struct {
	logger *zap.Logger
}

// NewLogAlertReceiver creates a log receiver.
func NewLogAlertReceiver(logger *zap.Logger) *LogAlertReceiver {
	return &LogAlertReceiver{logger: logger}
}

// SendAlert logs alert.
func (lar *LogAlertReceiver) SendAlert(_ context.Context, alert *Alert) error {
	fields := []zap.Field{
		zap.String("alert_id", alert.ID),
		zap.String("title", alert.Title),
		zap.String("message", alert.Message),
		zap.String("component", alert.Component),
		zap.Time("timestamp", alert.Timestamp),
	}
	switch alert.Level {
	case AlertLevelCritical:
		lar.logger.Error("CRITICAL ALERT", fields...)
	case AlertLevelWarning:
		lar.logger.Warn("WARNING ALERT", fields...)
	default:
		lar.logger.Info("INFO ALERT", fields...)
	}
	return nil
}

// WebhookAlertReceiver posts alerts as JSON.
type WebhookAlertReceiver struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhookAlertReceiver creates a webhook receiver.
func NewWebhookAlertReceiver(url string, logger *zap.Logger) *WebhookAlertReceiver {
	return &WebhookAlertReceiver{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// SendAlert posts alert to the webhook. Non-2xx responses are errors.
func (war *WebhookAlertReceiver) SendAlert(ctx context.Context, alert *Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, war.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := war.client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	war.logger.Debug("alert sent to webhook",
		zap.String("alert_id", alert.ID),
		zap.String("level", string(alert.Level)),
	)
	return nil
}
