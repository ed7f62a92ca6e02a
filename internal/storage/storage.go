package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"childservice/internal/models"
)

var (
	// ErrUsernameTaken signals a registration conflict.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrInvalidCredentials signals a failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnknownToken signals a token that is not a key of the user map.
	ErrUnknownToken = errors.New("unknown token")
	// ErrNotFound signals a missing report or thread.
	ErrNotFound = errors.New("not found")
)

// Store is the single source of truth for users, reports, threads, and the
// registry of open stream connections. One RWMutex guards the whole
// aggregate: mutations take the exclusive lock, lookups and fan-out reads
// share the read lock. Nothing outside this package touches the internals
// without going through a guarded operation.
type Store struct {
	mu        sync.RWMutex
	filePath  string
	logger    *slog.Logger
	data      Snapshot
	listeners []listener
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(Snapshot) error
}

// Option mutates store configuration.
type Option func(*Store)

// WithLogger installs the logger used for delivery and persistence errors.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore opens the snapshot at path and returns a ready store. A missing
// file yields an empty state; a corrupt file is returned as an error so the
// caller can refuse to start.
func NewStore(path string, opts ...Option) (*Store, error) {
	store := &Store{filePath: path}
	for _, opt := range opts {
		opt(store)
	}
	if store.logger == nil {
		store.logger = slog.Default()
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

// Save persists the current state on demand, for example at shutdown.
// Like every other save it is best-effort and logs instead of failing.
func (s *Store) Save() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.saveLocked()
}

// generateTokenLocked derives a session token from a hash of a high-resolution
// timestamp. The caller must hold the write lock: uniqueness is enforced by
// re-hashing until the digest is not already a key of the user map.
func (s *Store) generateTokenLocked() string {
	for {
		stamp := fmt.Sprintf("%x", time.Now().UnixNano())
		sum := sha256.Sum256([]byte(stamp))
		token := hex.EncodeToString(sum[:])
		if _, exists := s.data.Users[token]; !exists {
			return token
		}
	}
}

func generateID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// User operations

// RegisterUser creates an account and returns the freshly issued session
// token that doubles as the user's lookup key. The duplicate check and the
// insert happen under one exclusive lock so concurrent registrations cannot
// race each other.
func (s *Store) RegisterUser(username, password string) (models.User, string, error) {
	if strings.TrimSpace(username) == "" {
		return models.User{}, "", errors.New("username is required")
	}
	if password == "" {
		return models.User{}, "", errors.New("password is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.data.Users {
		if user.Username == username {
			return models.User{}, "", ErrUsernameTaken
		}
	}

	id, err := generateID()
	if err != nil {
		return models.User{}, "", err
	}
	user := models.User{
		UUID:        id,
		Username:    username,
		Password:    password,
		AccessLevel: models.AccessUser,
	}
	token := s.generateTokenLocked()
	s.data.Users[token] = user
	s.saveLocked()
	return user, token, nil
}

// Authenticate scans all users for an exact username and password match and
// returns the token key of the first hit. A linear scan is deliberate at
// this scale; the token map is keyed by credential, not by name.
func (s *Store) Authenticate(username, password string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for token, user := range s.data.Users {
		if user.Username == username && user.Password == password {
			return token, nil
		}
	}
	return "", ErrInvalidCredentials
}

// UserByToken resolves a bearer token against the user map.
func (s *Store) UserByToken(token string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.data.Users[token]
	if !ok {
		return models.User{}, ErrUnknownToken
	}
	return user, nil
}

// SetAccessLevel promotes or demotes an account, identified by uuid.
func (s *Store) SetAccessLevel(userUUID string, level models.AccessLevel) (models.User, error) {
	if !level.Valid() {
		return models.User{}, fmt.Errorf("invalid access level %q", level)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for token, user := range s.data.Users {
		if user.UUID == userUUID {
			user.AccessLevel = level
			s.data.Users[token] = user
			s.saveLocked()
			s.notifyLocked(userUUID)
			return user, nil
		}
	}
	return models.User{}, ErrNotFound
}

// ListUsers returns every registered user's public profile, ordered by
// username for stable output.
func (s *Store) ListUsers() []models.PublicUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listUsersLocked()
}

func (s *Store) listUsersLocked() []models.PublicUser {
	users := make([]models.PublicUser, 0, len(s.data.Users))
	for _, user := range s.data.Users {
		users = append(users, user.Public())
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users
}

// Nicknames returns the uuid-to-username table included in stream payloads.
func (s *Store) Nicknames() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nicknamesLocked()
}

func (s *Store) nicknamesLocked() map[string]string {
	nicknames := make(map[string]string, len(s.data.Users))
	for _, user := range s.data.Users {
		nicknames[user.UUID] = user.Username
	}
	return nicknames
}

func (s *Store) userByUUIDLocked(userUUID string) (models.User, bool) {
	for _, user := range s.data.Users {
		if user.UUID == userUUID {
			return user, true
		}
	}
	return models.User{}, false
}

// Report operations

// CreateReport opens a new report owned by the given user. The creator must
// exist at creation time; assignment and resolution happen later.
func (s *Store) CreateReport(userUUID, subject string, priority models.Priority) (models.Report, error) {
	if strings.TrimSpace(subject) == "" {
		return models.Report{}, errors.New("subject is required")
	}
	if !priority.Valid() {
		return models.Report{}, fmt.Errorf("invalid priority %q", priority)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.userByUUIDLocked(userUUID); !ok {
		return models.Report{}, fmt.Errorf("user %s: %w", userUUID, ErrNotFound)
	}

	id, err := generateID()
	if err != nil {
		return models.Report{}, err
	}
	report := models.Report{
		UUID:     id,
		CreateAt: nowMillis(),
		Subject:  subject,
		Priority: priority,
		UserUUID: userUUID,
		Messages: []models.Message{},
	}
	s.data.Reports = append(s.data.Reports, report)
	s.saveLocked()
	s.notifyLocked(userUUID)
	return cloneReport(report), nil
}

// AddReportMessage appends a message to the report's discussion.
func (s *Store) AddReportMessage(reportUUID, authorUUID, content string) (models.Report, error) {
	if strings.TrimSpace(content) == "" {
		return models.Report{}, errors.New("message content is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index, ok := s.reportIndexLocked(reportUUID)
	if !ok {
		return models.Report{}, fmt.Errorf("report %s: %w", reportUUID, ErrNotFound)
	}
	message := models.Message{
		AuthorUUID: authorUUID,
		Content:    content,
		CreateAt:   nowMillis(),
	}
	s.data.Reports[index].Messages = append(s.data.Reports[index].Messages, message)
	s.saveLocked()
	s.notifyLocked(s.data.Reports[index].UserUUID)
	return cloneReport(s.data.Reports[index]), nil
}

// ResolveReport marks the report as handled.
func (s *Store) ResolveReport(reportUUID string) (models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, ok := s.reportIndexLocked(reportUUID)
	if !ok {
		return models.Report{}, fmt.Errorf("report %s: %w", reportUUID, ErrNotFound)
	}
	s.data.Reports[index].IsResolved = true
	s.saveLocked()
	s.notifyLocked(s.data.Reports[index].UserUUID)
	return cloneReport(s.data.Reports[index]), nil
}

// AssignReport sets the employee handling the report.
func (s *Store) AssignReport(reportUUID, employeeUUID string) (models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, ok := s.reportIndexLocked(reportUUID)
	if !ok {
		return models.Report{}, fmt.Errorf("report %s: %w", reportUUID, ErrNotFound)
	}
	s.data.Reports[index].EmployeeUUID = employeeUUID
	s.saveLocked()
	s.notifyLocked(s.data.Reports[index].UserUUID)
	return cloneReport(s.data.Reports[index]), nil
}

// ReportByUUID returns a copy of a single report.
func (s *Store) ReportByUUID(reportUUID string) (models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, ok := s.reportIndexLocked(reportUUID)
	if !ok {
		return models.Report{}, fmt.Errorf("report %s: %w", reportUUID, ErrNotFound)
	}
	return cloneReport(s.data.Reports[index]), nil
}

// ReportsForUser returns copies of the reports created by the given user.
func (s *Store) ReportsForUser(userUUID string) []models.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reportsForUserLocked(userUUID)
}

func (s *Store) reportsForUserLocked(userUUID string) []models.Report {
	reports := []models.Report{}
	for _, report := range s.data.Reports {
		if report.UserUUID == userUUID {
			reports = append(reports, cloneReport(report))
		}
	}
	return reports
}

// AllReports returns copies of every report, in insertion order.
func (s *Store) AllReports() []models.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allReportsLocked()
}

func (s *Store) allReportsLocked() []models.Report {
	reports := make([]models.Report, 0, len(s.data.Reports))
	for _, report := range s.data.Reports {
		reports = append(reports, cloneReport(report))
	}
	return reports
}

func (s *Store) reportIndexLocked(reportUUID string) (int, bool) {
	for i := range s.data.Reports {
		if s.data.Reports[i].UUID == reportUUID {
			return i, true
		}
	}
	return 0, false
}

func cloneReport(report models.Report) models.Report {
	cloned := report
	cloned.Messages = append([]models.Message(nil), report.Messages...)
	return cloned
}

// Thread operations

// CreateThread opens a discussion thread referencing a report by uuid. The
// reference is never validated: a dangling report uuid is tolerated by
// design.
func (s *Store) CreateThread(reportUUID string) (models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := generateID()
	if err != nil {
		return models.Thread{}, err
	}
	thread := models.Thread{
		UUID:       id,
		ReportUUID: reportUUID,
		Messages:   []models.Message{},
	}
	s.data.Threads = append(s.data.Threads, thread)
	s.saveLocked()
	s.notifyForReportLocked(reportUUID)
	return cloneThread(thread), nil
}

// AddThreadMessage appends a message to the thread's discussion.
func (s *Store) AddThreadMessage(threadUUID, authorUUID, content string) (models.Thread, error) {
	if strings.TrimSpace(content) == "" {
		return models.Thread{}, errors.New("message content is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index, ok := s.threadIndexLocked(threadUUID)
	if !ok {
		return models.Thread{}, fmt.Errorf("thread %s: %w", threadUUID, ErrNotFound)
	}
	message := models.Message{
		AuthorUUID: authorUUID,
		Content:    content,
		CreateAt:   nowMillis(),
	}
	s.data.Threads[index].Messages = append(s.data.Threads[index].Messages, message)
	s.saveLocked()
	s.notifyForReportLocked(s.data.Threads[index].ReportUUID)
	return cloneThread(s.data.Threads[index]), nil
}

// ResolveThread marks the thread as concluded.
func (s *Store) ResolveThread(threadUUID string) (models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, ok := s.threadIndexLocked(threadUUID)
	if !ok {
		return models.Thread{}, fmt.Errorf("thread %s: %w", threadUUID, ErrNotFound)
	}
	s.data.Threads[index].IsResolved = true
	s.saveLocked()
	s.notifyForReportLocked(s.data.Threads[index].ReportUUID)
	return cloneThread(s.data.Threads[index]), nil
}

// ThreadByUUID returns a copy of a single thread.
func (s *Store) ThreadByUUID(threadUUID string) (models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, ok := s.threadIndexLocked(threadUUID)
	if !ok {
		return models.Thread{}, fmt.Errorf("thread %s: %w", threadUUID, ErrNotFound)
	}
	return cloneThread(s.data.Threads[index]), nil
}

// ThreadsForReport returns copies of the threads referencing a report.
func (s *Store) ThreadsForReport(reportUUID string) []models.Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()

	threads := []models.Thread{}
	for _, thread := range s.data.Threads {
		if thread.ReportUUID == reportUUID {
			threads = append(threads, cloneThread(thread))
		}
	}
	return threads
}

// AllThreads returns copies of every thread, in insertion order.
func (s *Store) AllThreads() []models.Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()

	threads := make([]models.Thread, 0, len(s.data.Threads))
	for _, thread := range s.data.Threads {
		threads = append(threads, cloneThread(thread))
	}
	return threads
}

func (s *Store) threadIndexLocked(threadUUID string) (int, bool) {
	for i := range s.data.Threads {
		if s.data.Threads[i].UUID == threadUUID {
			return i, true
		}
	}
	return 0, false
}

func cloneThread(thread models.Thread) models.Thread {
	cloned := thread
	cloned.Messages = append([]models.Message(nil), thread.Messages...)
	return cloned
}
