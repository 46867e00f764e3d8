// Package worker consumes scan and firmware jobs from the scheduler queues,
// drives the pipelines, and persists results into the inventory.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelops/netscout/internal/config"
	"github.com/sentinelops/netscout/internal/firmware"
	"github.com/sentinelops/netscout/internal/models"
	"github.com/sentinelops/netscout/internal/repository"
	"github.com/sentinelops/netscout/internal/scanner"
	"github.com/sentinelops/netscout/internal/scheduler"
)

const (
	dequeueTimeout = 2 * time.Second
	idleSleep      = 500 * time.Millisecond
	errorSleep     = 2 * time.Second
)

// scanStageLabels names the four scan stages, indexed by stage-1.
var scanStageLabels = [4]string{
	"Ping Sweep",
	"ARP MAC Lookup",
	"Port Scanning",
	"Deep Scan (SYN + Version + Scripts + OS)",
}

// Worker runs the scan and firmware job loops. One Worker per process;
// jobs within a loop run concurrently in their own goroutines.
type Worker struct {
	cfg       *config.Config
	scans     repository.ScanRepository
	hosts     repository.HostRepository
	firmwares repository.FirmwareRepository
	sched     *scheduler.Scheduler
	scanPipe  *scanner.Pipeline
	fwPipe    *firmware.Pipeline
	log       *slog.Logger
}

// New assembles a worker over shared repositories and pipelines.
func New(
	cfg *config.Config,
	scans repository.ScanRepository,
	hosts repository.HostRepository,
	firmwares repository.FirmwareRepository,
	sched *scheduler.Scheduler,
	scanPipe *scanner.Pipeline,
	fwPipe *firmware.Pipeline,
	log *slog.Logger,
) *Worker {
	return &Worker{
		cfg:       cfg,
		scans:     scans,
		hosts:     hosts,
		firmwares: firmwares,
		sched:     sched,
		scanPipe:  scanPipe,
		fwPipe:    fwPipe,
		log:       log,
	}
}

// Run blocks until ctx is cancelled, consuming both job queues. In-flight
// jobs are waited for before Run returns.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.consume(ctx, scheduler.KindScan, w.processScan)
	}()
	go func() {
		defer wg.Done()
		w.consume(ctx, scheduler.KindFirmware, w.processFirmware)
	}()
	wg.Wait()
}

func (w *Worker) consume(ctx context.Context, kind scheduler.JobKind, handle func(context.Context, string)) {
	var jobs sync.WaitGroup
	defer jobs.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobID, err := w.sched.Dequeue(ctx, kind, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error("dequeue failed",
				slog.String("kind", string(kind)), slog.String("error", err.Error()))
			sleep(ctx, errorSleep)
			continue
		}
		if jobID == "" {
			sleep(ctx, idleSleep)
			continue
		}

		jobs.Add(1)
		go func() {
			defer jobs.Done()
			handle(ctx, jobID)
		}()
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// stageFromMessage parses the pipeline stage from a progress message of
// the form "Stage N: ...". The second return is false when the message
// carries no stage prefix; the caller keeps the stage it already has.
func stageFromMessage(message string) (int, bool) {
	if !strings.HasPrefix(message, "Stage ") {
		return 0, false
	}
	rest := message[len("Stage "):]
	idx := strings.IndexByte(rest, ':')
	if idx < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(rest[:idx]))
	if err != nil {
		return 0, false
	}
	return n, true
}

func stageLabel(stage int) string {
	if stage >= 1 && stage <= len(scanStageLabels) {
		return scanStageLabels[stage-1]
	}
	return "Starting"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// processScan runs the full discovery pipeline for one queued scan.
func (w *Worker) processScan(ctx context.Context, jobID string) {
	scanID, err := uuid.Parse(jobID)
	if err != nil {
		w.log.Error("invalid scan job id", slog.String("job_id", jobID))
		return
	}
	log := w.log.With(slog.String("scan_id", jobID))

	scan, err := w.scans.GetByID(ctx, scanID)
	if err != nil {
		log.Error("load scan failed", slog.String("error", err.Error()))
		return
	}
	if scan == nil {
		log.Warn("scan job references missing scan")
		return
	}
	if scan.Status == models.ScanCancelled {
		log.Info("scan cancelled before pickup, skipping")
		_ = w.sched.ClearCancel(ctx, scheduler.KindScan, jobID)
		return
	}

	if err := w.scans.MarkRunning(ctx, scanID); err != nil {
		log.Error("mark running failed", slog.String("error", err.Error()))
		return
	}

	priorPortCounts, err := w.hosts.PortCounts(ctx)
	if err != nil {
		log.Error("load port counts failed", slog.String("error", err.Error()))
		priorPortCounts = map[string]int{}
	}

	// Stage is sticky per job: messages without a stage prefix (and any
	// out-of-order checkpoint) report the highest stage seen so far, so
	// current_stage never decreases while the scan is running.
	var stageMu sync.Mutex
	lastStage := 0
	onProgress := func(ctx context.Context, message string, details map[string]any) error {
		cancelled, err := w.sched.IsCancelled(ctx, scheduler.KindScan, jobID)
		if err != nil {
			log.Error("cancel check failed", slog.String("error", err.Error()))
		} else if cancelled {
			return scanner.ErrCancelled
		}

		stageMu.Lock()
		if n, ok := stageFromMessage(message); ok && n > lastStage {
			lastStage = n
		}
		stage := lastStage
		stageMu.Unlock()
		label := stageLabel(stage)
		if err := w.scans.UpdateProgress(ctx, scanID, stage, label); err != nil {
			return err
		}

		level := "info"
		if isErr, ok := details["error"].(bool); ok && isErr {
			level = "error"
		}
		if err := w.scans.AddLog(ctx, &models.ScanLog{
			ScanID:  scanID,
			Stage:   stage,
			Level:   level,
			Message: message,
		}); err != nil {
			return err
		}

		return w.sched.PublishProgress(ctx, scheduler.KindScan, jobID, map[string]any{
			"type":        "scan_progress",
			"scan_id":     jobID,
			"stage":       stage,
			"stage_label": label,
			"message":     message,
			"data":        details,
		})
	}

	hosts, err := w.scanPipe.Run(ctx, scan.Target, priorPortCounts, onProgress)
	if errors.Is(err, scanner.ErrCancelled) {
		log.Warn("scan cancelled")
		scansProcessedTotal.WithLabelValues("cancelled").Inc()
		if err := w.scans.MarkCancelled(ctx, scanID); err != nil {
			log.Error("mark cancelled failed", slog.String("error", err.Error()))
		}
		_ = w.scans.AddLog(ctx, &models.ScanLog{
			ScanID: scanID, Level: "warning", Message: "Scan cancelled by user",
		})
		_ = w.sched.ClearCancel(ctx, scheduler.KindScan, jobID)
		_ = w.sched.PublishProgress(ctx, scheduler.KindScan, jobID, map[string]any{
			"type":    "scan_cancelled",
			"scan_id": jobID,
		})
		return
	}
	if err != nil {
		log.Error("scan pipeline failed", slog.String("error", err.Error()))
		scansProcessedTotal.WithLabelValues("failed").Inc()
		if err2 := w.scans.Fail(ctx, scanID, truncate(err.Error(), 2000)); err2 != nil {
			log.Error("mark failed failed", slog.String("error", err2.Error()))
		}
		_ = w.scans.AddLog(ctx, &models.ScanLog{
			ScanID: scanID, Level: "error", Message: truncate(err.Error(), 2000),
		})
		_ = w.sched.PublishProgress(ctx, scheduler.KindScan, jobID, map[string]any{
			"type":    "scan_failed",
			"scan_id": jobID,
			"error":   truncate(err.Error(), 500),
		})
		return
	}

	liveHosts := 0
	totalPorts := 0
	for i := range hosts {
		h := &hosts[i]
		if h.IsUp {
			liveHosts++
		}
		totalPorts += len(h.OpenPorts)
		if err := w.persistHost(ctx, scanID, h); err != nil {
			log.Error("persist host failed",
				slog.String("ip", h.IP), slog.String("error", err.Error()))
		}
	}

	if err := w.scans.Complete(ctx, scanID, len(hosts), liveHosts, totalPorts); err != nil {
		log.Error("mark completed failed", slog.String("error", err.Error()))
	}
	scansProcessedTotal.WithLabelValues("completed").Inc()
	hostsDiscoveredTotal.Add(float64(len(hosts)))
	openPortsFoundTotal.Add(float64(totalPorts))
	_ = w.sched.PublishProgress(ctx, scheduler.KindScan, jobID, map[string]any{
		"type":    "scan_completed",
		"scan_id": jobID,
		"hosts":   len(hosts),
		"ports":   totalPorts,
	})
	log.Info("scan completed",
		slog.Int("hosts", len(hosts)), slog.Int("open_ports", totalPorts))
}

// persistHost upserts one discovered host and replaces its port set.
func (w *Worker) persistHost(ctx context.Context, scanID uuid.UUID, d *scanner.DiscoveredHost) error {
	mac := d.MAC
	if mac == "" {
		mac = scanner.SurrogateMAC(d.IP)
	}

	host := &models.Host{
		MACAddress:     mac,
		ScanID:         &scanID,
		IPAddress:      d.IP,
		Hostname:       nilIfEmpty(d.Hostname),
		Vendor:         nilIfEmpty(d.Vendor),
		OSName:         nilIfEmpty(d.OSName),
		OSFamily:       nilIfEmpty(d.OSFamily),
		OSCPE:          nilIfEmpty(d.OSCPE),
		IsUp:           d.IsUp,
		ResponseTimeMs: d.ResponseTimeMs,
		NmapRawXML:     nilIfEmpty(d.NmapXML),
		OpenPortCount:  len(d.OpenPorts),
	}
	if d.OSAccuracy != 0 {
		acc := d.OSAccuracy
		host.OSAccuracy = &acc
	}
	if err := w.hosts.UpsertScanResult(ctx, host); err != nil {
		return err
	}

	ports := make([]*models.Port, 0, len(d.OpenPorts))
	for _, num := range d.OpenPorts {
		p := &models.Port{HostMAC: mac, PortNumber: num, Protocol: "tcp", State: "open"}
		if svc, ok := d.Services[num]; ok {
			p.Protocol = svc.Protocol
			p.State = svc.State
			p.ServiceName = nilIfEmpty(svc.Name)
			p.ServiceProduct = nilIfEmpty(svc.Product)
			p.ServiceVersion = nilIfEmpty(svc.Version)
			p.ServiceExtraInfo = nilIfEmpty(svc.ExtraInfo)
			p.ServiceCPE = nilIfEmpty(svc.CPE)
			p.ScriptsOutput = nilIfEmpty(svc.Scripts)
		}
		ports = append(ports, p)
	}
	return w.hosts.ReplacePorts(ctx, mac, ports)
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// processFirmware runs the three-stage firmware pipeline for one queued
// analysis, persisting after every stage so progress survives a crash.
func (w *Worker) processFirmware(ctx context.Context, jobID string) {
	analysisID, err := uuid.Parse(jobID)
	if err != nil {
		w.log.Error("invalid firmware job id", slog.String("job_id", jobID))
		return
	}
	log := w.log.With(slog.String("analysis_id", jobID))

	fa, err := w.firmwares.GetByID(ctx, analysisID)
	if err != nil {
		log.Error("load analysis failed", slog.String("error", err.Error()))
		return
	}
	if fa == nil {
		log.Warn("firmware job references missing analysis")
		return
	}

	host, err := w.hosts.GetWithDetails(ctx, fa.HostMAC)
	if err != nil || host == nil {
		w.failFirmware(ctx, fa, "host not found in inventory")
		return
	}

	fwURL := ""
	if fa.FwURL != nil {
		fwURL = *fa.FwURL
	} else if host.FirmwareURL != nil {
		fwURL = *host.FirmwareURL
	}
	if fwURL == "" {
		w.failFirmware(ctx, fa, "no firmware URL configured for host")
		return
	}

	if err := w.firmwares.MarkRunning(ctx, analysisID); err != nil {
		log.Error("mark running failed", slog.String("error", err.Error()))
		return
	}

	// Stage A: download.
	w.firmwareStage(ctx, fa, 1, firmware.StageLabels[0], models.FirmwareDownloading)
	stageStart := time.Now()
	fwPath, fwHash, fwSize, err := w.fwPipe.Download.Download(ctx, fwURL, host.IPAddress, fa.HostMAC)
	firmwareStageDuration.WithLabelValues("download").Observe(time.Since(stageStart).Seconds())
	if err != nil {
		w.failFirmware(ctx, fa, err.Error())
		return
	}
	if err := w.firmwares.SetDownloadResult(ctx, analysisID, fwPath, fwHash, fwSize); err != nil {
		log.Error("persist download result failed", slog.String("error", err.Error()))
	}
	if err := w.hosts.SetFirmwareDownload(ctx, fa.HostMAC, fwPath, fwHash, models.FirmwareDownloaded); err != nil {
		log.Error("mirror download result failed", slog.String("error", err.Error()))
	}
	w.firmwareStage(ctx, fa, 1, "Firmware Downloaded", models.FirmwareDownloaded)

	if w.firmwareCancelled(ctx, fa) {
		return
	}

	// Stage B: EMBA.
	w.firmwareStage(ctx, fa, 2, firmware.StageLabels[1], models.FirmwareEmbaRunning)
	deviceID := strings.ReplaceAll(fa.HostMAC, ":", "")
	if len(deviceID) > 8 {
		deviceID = deviceID[:8]
	}
	stageStart = time.Now()
	logDir, err := w.fwPipe.Emba.Run(ctx, fwPath, deviceID, host.IPAddress)
	firmwareStageDuration.WithLabelValues("emba").Observe(time.Since(stageStart).Seconds())
	if err != nil {
		w.failFirmware(ctx, fa, err.Error())
		return
	}
	if err := w.firmwares.SetEmbaResult(ctx, analysisID, logDir); err != nil {
		log.Error("persist emba result failed", slog.String("error", err.Error()))
	}
	if err := w.hosts.SetFirmwareEmba(ctx, fa.HostMAC, logDir, models.FirmwareEmbaDone); err != nil {
		log.Error("mirror emba result failed", slog.String("error", err.Error()))
	}
	w.firmwareStage(ctx, fa, 2, "EMBA Analysis Complete", models.FirmwareEmbaDone)

	if w.firmwareCancelled(ctx, fa) {
		return
	}

	// Stage C: AI triage.
	w.firmwareStage(ctx, fa, 3, firmware.StageLabels[2], models.FirmwareTriaging)
	vendor := ""
	if host.Vendor != nil {
		vendor = *host.Vendor
	}
	stageStart = time.Now()
	res, err := w.fwPipe.Triage.Run(ctx, logDir, host.IPAddress, vendor, portsSummary(host.Ports), fa.HostMAC)
	firmwareStageDuration.WithLabelValues("triage").Observe(time.Since(stageStart).Seconds())
	if err != nil {
		w.failFirmware(ctx, fa, err.Error())
		return
	}

	if err := w.firmwares.Complete(ctx, analysisID,
		res.Report, res.RiskScore, res.FindingsCount, res.CriticalCount, res.HighCount); err != nil {
		log.Error("mark completed failed", slog.String("error", err.Error()))
	}
	if err := w.hosts.SetFirmwareTriage(ctx, fa.HostMAC,
		res.Report, res.RiskScore, models.FirmwareCompleted); err != nil {
		log.Error("mirror triage result failed", slog.String("error", err.Error()))
	}
	firmwareProcessedTotal.WithLabelValues("completed").Inc()
	w.publishFirmware(ctx, fa, map[string]any{
		"type":        "firmware_completed",
		"analysis_id": jobID,
		"host_mac":    fa.HostMAC,
		"risk_score":  res.RiskScore,
	})
	log.Info("firmware analysis completed",
		slog.Int("findings", res.FindingsCount), slog.Any("risk_score", res.RiskScore))
}

// firmwareStage persists and publishes one stage transition.
func (w *Worker) firmwareStage(ctx context.Context, fa *models.FirmwareAnalysis, stage int, label string, status models.FirmwareStatus) {
	if err := w.firmwares.UpdateStage(ctx, fa.ID, stage, label, status); err != nil {
		w.log.Error("update firmware stage failed", slog.String("error", err.Error()))
	}
	if err := w.hosts.SetFirmwareStatus(ctx, fa.HostMAC, status); err != nil {
		w.log.Error("mirror firmware status failed", slog.String("error", err.Error()))
	}
	w.publishFirmware(ctx, fa, map[string]any{
		"type":        "firmware_progress",
		"analysis_id": fa.ID.String(),
		"host_mac":    fa.HostMAC,
		"stage":       stage,
		"stage_label": label,
		"status":      string(status),
	})
}

// firmwareCancelled checks the cancel flag between stages and, when set,
// finalizes the analysis as cancelled.
func (w *Worker) firmwareCancelled(ctx context.Context, fa *models.FirmwareAnalysis) bool {
	jobID := fa.ID.String()
	cancelled, err := w.sched.IsCancelled(ctx, scheduler.KindFirmware, jobID)
	if err != nil {
		w.log.Error("firmware cancel check failed", slog.String("error", err.Error()))
		return false
	}
	if !cancelled {
		return false
	}

	w.log.Warn("firmware analysis cancelled", slog.String("analysis_id", jobID))
	firmwareProcessedTotal.WithLabelValues("cancelled").Inc()
	if err := w.firmwares.MarkCancelled(ctx, fa.ID); err != nil {
		w.log.Error("mark cancelled failed", slog.String("error", err.Error()))
	}
	if err := w.hosts.SetFirmwareStatus(ctx, fa.HostMAC, models.FirmwareCancelled); err != nil {
		w.log.Error("mirror cancelled status failed", slog.String("error", err.Error()))
	}
	_ = w.sched.ClearCancel(ctx, scheduler.KindFirmware, jobID)
	w.publishFirmware(ctx, fa, map[string]any{
		"type":        "firmware_cancelled",
		"analysis_id": jobID,
		"host_mac":    fa.HostMAC,
	})
	return true
}

// failFirmware finalizes an analysis as failed and mirrors onto the host.
func (w *Worker) failFirmware(ctx context.Context, fa *models.FirmwareAnalysis, errMsg string) {
	w.log.Error("firmware analysis failed",
		slog.String("analysis_id", fa.ID.String()), slog.String("error", errMsg))
	firmwareProcessedTotal.WithLabelValues("failed").Inc()
	if err := w.firmwares.Fail(ctx, fa.ID, truncate(errMsg, 2000)); err != nil {
		w.log.Error("mark failed failed", slog.String("error", err.Error()))
	}
	if err := w.hosts.SetFirmwareStatus(ctx, fa.HostMAC, models.FirmwareFailed); err != nil {
		w.log.Error("mirror failed status failed", slog.String("error", err.Error()))
	}
	w.publishFirmware(ctx, fa, map[string]any{
		"type":        "firmware_failed",
		"analysis_id": fa.ID.String(),
		"host_mac":    fa.HostMAC,
		"error":       truncate(errMsg, 500),
	})
}

func (w *Worker) publishFirmware(ctx context.Context, fa *models.FirmwareAnalysis, payload map[string]any) {
	if err := w.sched.PublishProgress(ctx, scheduler.KindFirmware, fa.ID.String(), payload); err != nil {
		w.log.Error("publish firmware progress failed", slog.String("error", err.Error()))
	}
}

// portsSummary renders a host's open ports for the triage prompt.
func portsSummary(ports []*models.Port) string {
	nums := make([]int, 0, len(ports))
	for _, p := range ports {
		if p.State == "open" {
			nums = append(nums, p.PortNumber)
		}
	}
	sort.Ints(nums)
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, ", ")
}
