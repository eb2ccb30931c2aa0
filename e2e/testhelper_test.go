package e2e

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/addresskit/addresskit"
	"github.com/addresskit/addresskit/config"
	"github.com/addresskit/addresskit/model"
)

const testAPIKey = "e2e-test-key"

// statusStep is one scripted status payload. The last step repeats for every
// probe after the script runs out.
type statusStep struct {
	status   string
	progress int
	message  string
	output   string
	errMsg   string
}

// fakeGateway is an in-memory stand-in for the remote standardization
// service, served over a real loopback listener so the client exercises its
// actual HTTP transport.
type fakeGateway struct {
	t   *testing.T
	app *fiber.App
	url string

	mu      sync.Mutex
	nextID  int
	jobs    map[string][]statusStep
	probes  map[string]int
	rows    map[string][]map[string]any // output file → all result rows
	columns []string
	records []fiber.Map
}

// startGateway boots the fake gateway and returns it with its base URL set.
func startGateway(t *testing.T) *fakeGateway {
	t.Helper()

	g := &fakeGateway{
		t:       t,
		jobs:    make(map[string][]statusStep),
		probes:  make(map[string]int),
		rows:    make(map[string][]map[string]any),
		columns: []string{"street", "city", "zip"},
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             50 * 1024 * 1024,
	})

	app.Use(func(c *fiber.Ctx) error {
		if c.Get("Authorization") != "Bearer "+testAPIKey {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing credentials"})
		}
		return c.Next()
	})

	app.Post("/api/process/batch", g.handleSubmitJSON)
	app.Post("/api/process/split", g.handleSubmitJSON)
	app.Post("/api/process/database", g.handleSubmitDatabase)
	app.Post("/api/process/upload", g.handleSubmitMultipart)
	app.Post("/api/process/compare", g.handleSubmitMultipart)
	app.Get("/api/status/:id", g.handleStatus)
	app.Get("/api/preview/:file", g.handlePreview)
	app.Get("/api/download/:file", g.handleDownload)
	app.Get("/api/jobs", g.handleJobs)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to open listener: %v", err)
	}
	go func() {
		if err := app.Listener(ln); err != nil {
			t.Logf("gateway listener stopped: %v", err)
		}
	}()
	t.Cleanup(func() { _ = app.Shutdown() })

	g.app = app
	g.url = "http://" + ln.Addr().String()
	return g
}

// script registers a fresh job id with the given status progression and
// returns the id.
func (g *fakeGateway) script(steps ...statusStep) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	id := fmt.Sprintf("job-%d", g.nextID)
	g.jobs[id] = steps
	return id
}

// addOutput registers result rows for an output file.
func (g *fakeGateway) addOutput(outputRef string, rows []map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rows[outputRef] = rows
}

// lastScripted returns the id registered by the most recent submission.
func (g *fakeGateway) lastScripted() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fmt.Sprintf("job-%d", g.nextID)
}

func (g *fakeGateway) handleSubmitJSON(c *fiber.Ctx) error {
	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}
	id := g.takeOrDefault()
	return c.JSON(fiber.Map{"message": "Processing started", "processing_id": id})
}

func (g *fakeGateway) handleSubmitDatabase(c *fiber.Ctx) error {
	var body struct {
		ConnectionString string `json:"connection_string"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}
	if body.ConnectionString == "postgres://bad" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad connection string"})
	}
	id := g.takeOrDefault()
	return c.JSON(fiber.Map{"message": "Database task accepted", "processing_id": id})
}

func (g *fakeGateway) handleSubmitMultipart(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid multipart body"})
	}
	total := 0
	for _, files := range form.File {
		total += len(files)
	}
	if total == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no file attached"})
	}
	id := g.takeOrDefault()
	return c.JSON(fiber.Map{"message": "Upload received", "processing_id": id})
}

// takeOrDefault returns the most recently scripted id, or registers an
// immediately-completed job when the test did not script one.
func (g *fakeGateway) takeOrDefault() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.nextID > 0 {
		id := fmt.Sprintf("job-%d", g.nextID)
		if _, ok := g.jobs[id]; ok {
			return id
		}
	}
	g.nextID++
	id := fmt.Sprintf("job-%d", g.nextID)
	g.jobs[id] = []statusStep{{status: "completed", progress: 100, message: "Done"}}
	return id
}

func (g *fakeGateway) handleStatus(c *fiber.Ctx) error {
	id := c.Params("id")

	g.mu.Lock()
	steps, ok := g.jobs[id]
	if !ok {
		g.mu.Unlock()
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown job"})
	}
	probe := g.probes[id]
	g.probes[id] = probe + 1
	if probe >= len(steps) {
		probe = len(steps) - 1
	}
	step := steps[probe]
	g.mu.Unlock()

	resp := fiber.Map{
		"status":   step.status,
		"progress": step.progress,
		"message":  step.message,
	}
	if step.output != "" {
		resp["output_file"] = step.output
	}
	if step.errMsg != "" {
		resp["error"] = step.errMsg
	}
	return c.JSON(resp)
}

func (g *fakeGateway) handlePreview(c *fiber.Ctx) error {
	file := c.Params("file")
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "50"))

	g.mu.Lock()
	rows, ok := g.rows[file]
	columns := append([]string(nil), g.columns...)
	g.mu.Unlock()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "file not found"})
	}

	start := (page - 1) * pageSize
	if start > len(rows) {
		start = len(rows)
	}
	end := start + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	return c.JSON(fiber.Map{"columns": columns, "rows": rows[start:end]})
}

func (g *fakeGateway) handleDownload(c *fiber.Ctx) error {
	file := c.Params("file")
	g.mu.Lock()
	_, ok := g.rows[file]
	g.mu.Unlock()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "file not found"})
	}
	c.Set("Content-Type", "text/csv")
	return c.SendString("street,city,zip\n1 Main St,Springfield,12345\n")
}

func (g *fakeGateway) handleJobs(c *fiber.Ctx) error {
	g.mu.Lock()
	records := append([]fiber.Map(nil), g.records...)
	g.mu.Unlock()
	return c.JSON(fiber.Map{"jobs": records})
}

// newTestClient wires an addresskit client against the fake gateway with a
// fast poll cadence and a small preview page size.
func newTestClient(t *testing.T, g *fakeGateway) *addresskit.Client {
	t.Helper()
	c := addresskit.New(&config.Config{
		Gateway: config.GatewayConfig{
			BaseURL:       g.url,
			APIKey:        testAPIKey,
			SubmitTimeout: 30,
			PollTimeout:   5,
		},
		Poll:    config.PollConfig{Interval: 1},
		Preview: config.PreviewConfig{PageSize: 3},
		History: config.HistoryConfig{Limit: 100},
	})
	t.Cleanup(c.Close)
	return c
}

// waitTerminal polls the client's job snapshot until the job reaches a
// terminal phase or the deadline passes.
func waitTerminal(t *testing.T, c *addresskit.Client, kind model.JobKind) model.Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := c.Job(kind)
		if ok && job.Phase.Terminal() {
			return job
		}
		time.Sleep(50 * time.Millisecond)
	}
	job, _ := c.Job(kind)
	t.Fatalf("job for %s never reached a terminal phase, last: %+v", kind, job)
	return model.Job{}
}
