package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/sma-registration-api/internal/models"
	"github.com/noah-isme/sma-registration-api/internal/repository"
)

// memoryDocs is an in-memory documentStore recording every call as
// "<op> <collection>" in order.
type memoryDocs struct {
	mu       sync.Mutex
	data     map[string]map[string]models.Document
	calls    []string
	seq      int
	queryErr map[string]error
	addErr   map[string]error
	// addFailAfter makes the n-th Add to a collection (1-based) fail.
	addFailAfter map[string]int
	addCount     map[string]int
	setErr       error
	updateErr    error
	// dropSets makes Set to a collection succeed without storing anything.
	dropSets map[string]bool
}

func newMemoryDocs() *memoryDocs {
	return &memoryDocs{
		data:         map[string]map[string]models.Document{},
		queryErr:     map[string]error{},
		addErr:       map[string]error{},
		addFailAfter: map[string]int{},
		addCount:     map[string]int{},
		dropSets:     map[string]bool{},
	}
}

func (m *memoryDocs) record(op, collection string) {
	m.calls = append(m.calls, op+" "+collection)
}

func (m *memoryDocs) seed(collection, id string, data map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[collection] == nil {
		m.data[collection] = map[string]models.Document{}
	}
	m.seq++
	m.data[collection][id] = models.Document{
		ID:         id,
		Collection: collection,
		Data:       data,
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, m.seq, 0, time.UTC),
	}
}

func (m *memoryDocs) Query(_ context.Context, collection string, filters ...models.Filter) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("query", collection)
	if err := m.queryErr[collection]; err != nil {
		return nil, err
	}
	var out []models.Document
	for _, doc := range m.data[collection] {
		match := true
		for _, f := range filters {
			if fmt.Sprint(doc.Data[f.Field]) != fmt.Sprint(f.Value) {
				match = false
				break
			}
		}
		if match {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryDocs) Get(_ context.Context, collection, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("get", collection)
	doc, ok := m.data[collection][id]
	if !ok {
		return nil, repository.ErrDocumentNotFound
	}
	return &doc, nil
}

func (m *memoryDocs) Add(_ context.Context, collection string, data map[string]interface{}) (string, error) {
	m.mu.Lock()
	m.record("add", collection)
	m.addCount[collection]++
	if err := m.addErr[collection]; err != nil {
		if n := m.addFailAfter[collection]; n == 0 || m.addCount[collection] == n {
			m.mu.Unlock()
			return "", err
		}
	}
	id := fmt.Sprintf("%s-%d", strings.TrimSuffix(collection, "s"), m.addCount[collection])
	m.mu.Unlock()
	m.seed(collection, id, data)
	return id, nil
}

func (m *memoryDocs) Set(_ context.Context, collection, id string, data map[string]interface{}) error {
	m.mu.Lock()
	m.record("set", collection)
	err, drop := m.setErr, m.dropSets[collection]
	m.mu.Unlock()
	if err != nil || drop {
		return err
	}
	m.seed(collection, id, data)
	return nil
}

func (m *memoryDocs) Update(_ context.Context, collection, id string, patch map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("update", collection)
	if m.updateErr != nil {
		return m.updateErr
	}
	doc, ok := m.data[collection][id]
	if !ok {
		return repository.ErrDocumentNotFound
	}
	for k, v := range patch {
		doc.Data[k] = v
	}
	m.data[collection][id] = doc
	return nil
}

func (m *memoryDocs) count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data[collection])
}

func (m *memoryDocs) writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.calls {
		if strings.HasPrefix(c, "get ") || strings.HasSuffix(c, models.CollectionAuditLogs) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// fakeAccounts is an accountStore + accountLookup backed by a map.
type fakeAccounts struct {
	mu         sync.Mutex
	emails     map[string]string
	signedOut  []string
	createErr  map[string]error
	signOutErr error
	lookupErr  error
	seq        int
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{emails: map[string]string{}, createErr: map[string]error{}}
}

func (f *fakeAccounts) CreateAccount(_ context.Context, email, password string) (*models.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.createErr[email]; err != nil {
		return nil, err
	}
	if _, taken := f.emails[email]; taken {
		return nil, &models.AccountError{Code: models.AccountErrEmailInUse}
	}
	if password == "" {
		return nil, &models.AccountError{Code: models.AccountErrWeakPassword}
	}
	f.seq++
	uid := fmt.Sprintf("uid-%d", f.seq)
	f.emails[email] = uid
	return &models.Credential{UID: uid, Email: email}, nil
}

func (f *fakeAccounts) SignOut(_ context.Context, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signOutErr != nil {
		return f.signOutErr
	}
	f.signedOut = append(f.signedOut, uid)
	return nil
}

func (f *fakeAccounts) ExistsByEmail(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	_, ok := f.emails[email]
	return ok, nil
}

type recordingNotifier struct {
	submitted []models.RegistrationResult
	decided   []models.StudentRecord
	err       error
}

func (r *recordingNotifier) RegistrationSubmitted(_ context.Context, _ models.ParentFormData, result models.RegistrationResult) error {
	r.submitted = append(r.submitted, result)
	return r.err
}

func (r *recordingNotifier) StudentDecided(_ context.Context, student models.StudentRecord, _ string) error {
	r.decided = append(r.decided, student)
	return r.err
}
