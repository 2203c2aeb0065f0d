package moneybird_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JobDoesburg/landolfio-backend/config"
	"github.com/JobDoesburg/landolfio-backend/models"
	"github.com/JobDoesburg/landolfio-backend/moneybird"
	"github.com/JobDoesburg/landolfio-backend/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// fakeAdministration is an in-memory stand-in for the remote API: list and
// single-record reads plus contact creation.
type fakeAdministration struct {
	mu             sync.Mutex
	contacts       []map[string]interface{}
	invoices       []map[string]interface{}
	contactQueries []url.Values
	posts          int
}

func (f *fakeAdministration) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		path := strings.TrimPrefix(r.URL.Path, "/adm1/")
		switch {
		case r.Method == http.MethodGet && path == "contacts.json":
			f.contactQueries = append(f.contactQueries, r.URL.Query())
			_ = json.NewEncoder(w).Encode(f.contacts)
		case r.Method == http.MethodGet && strings.HasPrefix(path, "contacts/"):
			id := strings.TrimSuffix(strings.TrimPrefix(path, "contacts/"), ".json")
			for _, c := range f.contacts {
				if c["id"] == id {
					_ = json.NewEncoder(w).Encode(c)
					return
				}
			}
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost && path == "contacts.json":
			f.posts++
			var body struct {
				Contact map[string]interface{} `json:"contact"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			created := map[string]interface{}{"id": "300", "version": 1}
			for k, v := range body.Contact {
				created[k] = v
			}
			f.contacts = append(f.contacts, created)
			_ = json.NewEncoder(w).Encode(created)
		case r.Method == http.MethodGet && path == "sales_invoices.json":
			_ = json.NewEncoder(w).Encode(f.invoices)
		case r.Method == http.MethodGet && strings.HasSuffix(path, ".json"):
			fmt.Fprint(w, `[]`)
		default:
			t.Errorf("unexpected remote request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestMoneybirdSyncScenarios(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "landolfio_test")

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()
	db := config.GetDB()

	remote := &fakeAdministration{
		contacts: []map[string]interface{}{
			{"id": "101", "version": 5, "company_name": "Alice BV", "firstname": "Alice", "email": "alice@example.test", "country": "nl"},
			{"id": "102", "version": 5, "firstname": "Bob", "email": "bob@example.test"},
		},
		invoices: []map[string]interface{}{
			{
				"id": "201", "version": 3, "contact_id": "101",
				"reference": "INV-001", "invoice_date": "2026-01-15",
				"total_price_incl_tax": "121.00", "total_unpaid": "121.00",
				"details": []map[string]interface{}{
					{"id": "2001", "description": "Rental cello month January", "amount": "1 x", "price": "100.00", "total_price_excl_tax_with_discount": "100.00"},
				},
			},
		},
	}
	srv := httptest.NewServer(remote.handler(t))
	t.Cleanup(srv.Close)

	settings := &config.MoneybirdSettings{
		APIBaseURL:       srv.URL,
		APIToken:         "test-token",
		AdministrationID: "adm1",
		WebhookID:        "wh1",
		WebhookToken:     "whtok",
		RequestTimeout:   10 * time.Second,
		SyncResources:    []string{"contact", "sales_invoice"},
	}

	logger := logrus.New()
	registry := moneybird.NewDefaultRegistry()
	client := moneybird.NewClient(settings)
	resolver := moneybird.NewResolver(registry, client, logger)
	engine := moneybird.NewEngine(resolver, settings, logger)
	processor := moneybird.NewProcessor(resolver, settings, logger)
	pusher := moneybird.NewPusher(resolver, logger)

	// An unlinked local row that should be adopted by natural key (email).
	bob := models.Contact{FirstName: "Bob", Email: "bob@example.test"}
	if err := db.Create(&bob).Error; err != nil {
		t.Fatalf("seed bob: %v", err)
	}

	run, err := engine.PerformSync(ctx, moneybird.SyncOptions{Full: true, TriggeredBy: models.SyncTriggeredManual})
	if err != nil {
		t.Fatalf("PerformSync: %v", err)
	}
	if run == nil || run.Status != models.SyncRunStatusSuccess {
		t.Fatalf("expected successful run, got %+v", run)
	}
	if run.RecordsSynced != 3 {
		t.Fatalf("expected 3 records synced, got %d", run.RecordsSynced)
	}

	var contactCount int64
	if err := db.Model(&models.Contact{}).Count(&contactCount).Error; err != nil {
		t.Fatalf("count contacts: %v", err)
	}
	if contactCount != 2 {
		t.Fatalf("adoption must not duplicate: expected 2 contacts, got %d", contactCount)
	}

	var adopted models.Contact
	if err := db.Where("id = ?", bob.ID).Take(&adopted).Error; err != nil {
		t.Fatalf("reload bob: %v", err)
	}
	if !adopted.Linked() || *adopted.RemoteId != "102" {
		t.Fatalf("bob not adopted: %+v", adopted.RemoteLink)
	}

	var alice models.Contact
	if err := db.Where("remote_id = ?", "101").Take(&alice).Error; err != nil {
		t.Fatalf("alice not created: %v", err)
	}
	if alice.Country != "NL" || alice.CompanyName != "Alice BV" {
		t.Fatalf("alice fields not mapped: %+v", alice)
	}

	var invoice models.Document
	if err := db.Where("remote_id = ?", "201").Take(&invoice).Error; err != nil {
		t.Fatalf("invoice not created: %v", err)
	}
	if invoice.Kind != models.DocumentKindSalesInvoice || invoice.ContactId != alice.ID {
		t.Fatalf("invoice not wired to contact: %+v", invoice)
	}
	var lines []models.DocumentLine
	if err := db.Where("document_id = ?", invoice.ID).Find(&lines).Error; err != nil {
		t.Fatalf("load lines: %v", err)
	}
	if len(lines) != 1 || lines[0].RowOrder != 1 || !lines[0].Linked() {
		t.Fatalf("unexpected lines: %+v", lines)
	}

	for _, entityType := range []string{"contact", "sales_invoice"} {
		cursor, err := models.GetSyncCursor(ctx, entityType)
		if err != nil || cursor == nil || cursor.Cursor == "" {
			t.Fatalf("cursor missing for %s: %v %v", entityType, cursor, err)
		}
	}

	// Second identical pass must be a no-op for the row set.
	run2, err := engine.PerformSync(ctx, moneybird.SyncOptions{Full: true})
	if err != nil || run2 == nil || run2.Status != models.SyncRunStatusSuccess {
		t.Fatalf("second pass: %+v %v", run2, err)
	}
	if err := db.Model(&models.Contact{}).Count(&contactCount).Error; err != nil {
		t.Fatalf("recount contacts: %v", err)
	}
	if contactCount != 2 {
		t.Fatalf("second pass duplicated rows: %d", contactCount)
	}

	// Stale webhook: version below the stored one must be ignored.
	stale := &moneybird.WebhookEvent{
		WebhookId: "wh1", WebhookToken: "whtok", AdministrationId: "adm1",
		EntityType: "Contact", Action: "contact_updated",
		Entity: json.RawMessage(`{"id":"101","version":1,"company_name":"Stale BV","email":"alice@example.test"}`),
	}
	if err := processor.Process(ctx, stale); err != nil {
		t.Fatalf("stale webhook: %v", err)
	}
	if err := db.Where("remote_id = ?", "101").Take(&alice).Error; err != nil {
		t.Fatalf("reload alice: %v", err)
	}
	if alice.CompanyName != "Alice BV" {
		t.Fatalf("stale webhook applied: %q", alice.CompanyName)
	}

	// Newer version applies.
	newer := &moneybird.WebhookEvent{
		WebhookId: "wh1", WebhookToken: "whtok", AdministrationId: "adm1",
		EntityType: "Contact", Action: "contact_updated",
		Entity: json.RawMessage(`{"id":"101","version":7,"company_name":"Alice Updated BV","firstname":"Alice","email":"alice@example.test","country":"NL"}`),
	}
	if err := processor.Process(ctx, newer); err != nil {
		t.Fatalf("newer webhook: %v", err)
	}
	if err := db.Where("remote_id = ?", "101").Take(&alice).Error; err != nil {
		t.Fatalf("reload alice: %v", err)
	}
	if alice.CompanyName != "Alice Updated BV" || *alice.RemoteVersion != 7 {
		t.Fatalf("newer webhook not applied: %+v", alice)
	}

	// Bad token: rejected, nothing written.
	forged := &moneybird.WebhookEvent{
		WebhookId: "wh1", WebhookToken: "wrong", AdministrationId: "adm1",
		EntityType: "Contact", Action: "contact_updated",
		Entity: json.RawMessage(`{"id":"101","version":99,"company_name":"Forged BV","email":"alice@example.test"}`),
	}
	err = processor.Process(ctx, forged)
	var rejected *moneybird.WebhookRejected
	if !errors.As(err, &rejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if err := db.Where("remote_id = ?", "101").Take(&alice).Error; err != nil {
		t.Fatalf("reload alice: %v", err)
	}
	if alice.CompanyName != "Alice Updated BV" {
		t.Fatalf("forged webhook mutated data")
	}

	// Remote deletion unlinks, never deletes.
	destroy := &moneybird.WebhookEvent{
		WebhookId: "wh1", WebhookToken: "whtok", AdministrationId: "adm1",
		EntityType: "Contact", Action: "contact_destroyed",
		Entity: json.RawMessage(`{"id":"102"}`),
	}
	if err := processor.Process(ctx, destroy); err != nil {
		t.Fatalf("destroy webhook: %v", err)
	}
	if err := db.Where("id = ?", bob.ID).Take(&adopted).Error; err != nil {
		t.Fatalf("bob row must survive deletion: %v", err)
	}
	if adopted.Linked() {
		t.Fatalf("bob still linked after remote deletion")
	}
	// Replaying the deletion is a no-op.
	if err := processor.Process(ctx, destroy); err != nil {
		t.Fatalf("replayed destroy webhook: %v", err)
	}

	// A delivery whose entity snapshot is null identifies the record through
	// entity_id; the linked asset loses its link and cached remote state.
	remoteId := "555"
	var version int64 = 2
	cello := models.Asset{
		TagId:       "C-0042",
		Description: "Cello 4/4",
		RemoteState: "in_use",
		RemoteLink:  models.RemoteLink{RemoteId: &remoteId, RemoteVersion: &version},
	}
	if err := db.Create(&cello).Error; err != nil {
		t.Fatalf("seed asset: %v", err)
	}
	assetGone := &moneybird.WebhookEvent{
		WebhookId: "wh1", WebhookToken: "whtok", AdministrationId: "adm1",
		EntityType: "Asset", Action: "asset_destroyed",
		EntityId: json.Number("555"),
		Entity:   json.RawMessage(`null`),
	}
	if err := processor.Process(ctx, assetGone); err != nil {
		t.Fatalf("asset destroy webhook: %v", err)
	}
	if err := db.Where("id = ?", cello.ID).Take(&cello).Error; err != nil {
		t.Fatalf("asset row must survive deletion: %v", err)
	}
	if cello.Linked() || cello.RemoteState != "" {
		t.Fatalf("asset not unlinked: %+v", cello)
	}
	if cello.TagId != "C-0042" {
		t.Fatalf("asset tag must survive unlink")
	}

	// A full pass against an emptied remote unlinks everything it no longer
	// sees.
	remote.mu.Lock()
	remote.contacts = nil
	remote.invoices = nil
	remote.mu.Unlock()

	run3, err := engine.PerformSync(ctx, moneybird.SyncOptions{Full: true})
	if err != nil || run3 == nil || run3.Status != models.SyncRunStatusSuccess {
		t.Fatalf("third pass: %+v %v", run3, err)
	}
	if err := db.Where("id = ?", alice.ID).Take(&alice).Error; err != nil {
		t.Fatalf("alice row must survive: %v", err)
	}
	if alice.Linked() {
		t.Fatalf("alice still linked after disappearing remotely")
	}
	if err := db.Where("id = ?", invoice.ID).Take(&invoice).Error; err != nil {
		t.Fatalf("invoice row must survive: %v", err)
	}
	if invoice.Linked() {
		t.Fatalf("invoice still linked after disappearing remotely")
	}

	// Local save pushes and adopts the returned identity in one commit.
	carol := &models.Contact{FirstName: "Carol", Email: "carol@example.test"}
	if err := pusher.Save(ctx, "contact", carol, moneybird.SaveOptions{}); err != nil {
		t.Fatalf("push save: %v", err)
	}
	var pushed models.Contact
	if err := db.Where("id = ?", carol.ID).Take(&pushed).Error; err != nil {
		t.Fatalf("reload carol: %v", err)
	}
	if !pushed.Linked() || *pushed.RemoteId != "300" || *pushed.RemoteVersion != 1 {
		t.Fatalf("pushed contact not linked: %+v", pushed.RemoteLink)
	}

	// SuppressPush keeps remote-originated applies from echoing back.
	remote.mu.Lock()
	postsBefore := remote.posts
	remote.mu.Unlock()
	dave := &models.Contact{FirstName: "Dave", Email: "dave@example.test"}
	if err := pusher.Save(ctx, "contact", dave, moneybird.SaveOptions{SuppressPush: true}); err != nil {
		t.Fatalf("suppressed save: %v", err)
	}
	remote.mu.Lock()
	postsAfter := remote.posts
	remote.mu.Unlock()
	if postsAfter != postsBefore {
		t.Fatalf("suppressed save still pushed")
	}

	// Read-only resource types refuse pushes.
	err = pusher.Save(ctx, "tax_rate", &models.TaxRate{Name: "BTW 21%"}, moneybird.SaveOptions{})
	if !errors.Is(err, moneybird.ErrWriteNotPermitted) {
		t.Fatalf("expected ErrWriteNotPermitted, got %v", err)
	}
	var taxCount int64
	if err := db.Model(&models.TaxRate{}).Count(&taxCount).Error; err != nil {
		t.Fatalf("count tax rates: %v", err)
	}
	if taxCount != 0 {
		t.Fatalf("refused push must not write locally")
	}

	// A run queued through the trigger endpoints is picked up by id and
	// executed; picking up a finished run is a no-op.
	queued := models.SyncRun{
		Status:      models.SyncRunStatusQueued,
		TriggeredBy: models.SyncTriggeredManual,
		Full:        utils.NewTrue(),
	}
	if err := db.Create(&queued).Error; err != nil {
		t.Fatalf("seed queued run: %v", err)
	}
	done, err := engine.PerformQueuedRun(ctx, queued.ID)
	if err != nil {
		t.Fatalf("PerformQueuedRun: %v", err)
	}
	if done == nil || done.Status != models.SyncRunStatusSuccess {
		t.Fatalf("queued run did not finish: %+v", done)
	}
	if done.StartedAt == nil || done.FinishedAt == nil {
		t.Fatalf("queued run missing timestamps: %+v", done)
	}
	again, err := engine.PerformQueuedRun(ctx, queued.ID)
	if err != nil {
		t.Fatalf("replay queued run: %v", err)
	}
	if again.Status != models.SyncRunStatusSuccess || !again.FinishedAt.Equal(*done.FinishedAt) {
		t.Fatalf("finished run must not re-execute: %+v", again)
	}

	// An incremental pass carries the stored cursor as an updated_after
	// filter, and the carried-forward record at its stored version counts as
	// a stale skip instead of an apply.
	contactCursor, err := models.GetSyncCursor(ctx, "contact")
	if err != nil || contactCursor == nil || contactCursor.Cursor == "" {
		t.Fatalf("contact cursor missing before incremental pass: %v %v", contactCursor, err)
	}
	staleBefore := staleSkipCount(t, "contact")

	incRun, err := engine.PerformSync(ctx, moneybird.SyncOptions{Full: false})
	if err != nil || incRun == nil || incRun.Status != models.SyncRunStatusSuccess {
		t.Fatalf("incremental pass: %+v %v", incRun, err)
	}

	remote.mu.Lock()
	lastQuery := remote.contactQueries[len(remote.contactQueries)-1]
	remote.mu.Unlock()
	if got := lastQuery.Get("filter"); got != "updated_after:"+contactCursor.Cursor {
		t.Fatalf("incremental pass sent filter %q, want cursor %q", got, contactCursor.Cursor)
	}

	if got := staleSkipCount(t, "contact"); got != staleBefore+1 {
		t.Fatalf("expected one stale skip during incremental pass, counter went %v -> %v", staleBefore, got)
	}

	// Repeated cursor saves update the single row instead of stacking
	// duplicates.
	var cursorRows int64
	if err := db.Model(&models.SyncCursor{}).Where("entity_type = ?", "contact").Count(&cursorRows).Error; err != nil {
		t.Fatalf("count cursors: %v", err)
	}
	if cursorRows != 1 {
		t.Fatalf("expected one cursor row for contact, got %d", cursorRows)
	}

	// A record error keeps the cursor where it was so the next incremental
	// pass re-covers the window, and one failing type among clean ones makes
	// the run partial.
	cursorBeforeError, err := models.GetSyncCursor(ctx, "contact")
	if err != nil || cursorBeforeError == nil {
		t.Fatalf("reload contact cursor: %v %v", cursorBeforeError, err)
	}
	remote.mu.Lock()
	remote.contacts = []map[string]interface{}{{"id": ""}}
	remote.mu.Unlock()

	errRun, err := engine.PerformSync(ctx, moneybird.SyncOptions{Full: false})
	if err != nil {
		t.Fatalf("pass over broken record: %v", err)
	}
	if errRun == nil || errRun.Status != models.SyncRunStatusPartial {
		t.Fatalf("expected partial run when one type fails, got %+v", errRun)
	}
	cursorAfterError, err := models.GetSyncCursor(ctx, "contact")
	if err != nil || cursorAfterError == nil {
		t.Fatalf("reload contact cursor after error: %v %v", cursorAfterError, err)
	}
	if cursorAfterError.Cursor != cursorBeforeError.Cursor {
		t.Fatalf("record error advanced the cursor: %q -> %q", cursorBeforeError.Cursor, cursorAfterError.Cursor)
	}
}

func staleSkipCount(t *testing.T, entityType string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() != "moneybird_records_skipped_stale_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "entity_type" && label.GetValue() == entityType {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("landolfio-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=landolfio_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
