// Copyright 2026 The routeAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package memory loads persistent markdown memory files into a context
// string for system-prompt injection, and appends per-session summaries
// and per-person profile notes. All files live under one base directory
// owned by this process.
package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	longTermFile = "MEMORY.md"
	profilesDir  = "profiles"
	sessionsDir  = "sessions"

	dirPermissions  = 0700
	filePermissions = 0600

	// DefaultDaysBack bounds how many daily session files are folded into
	// the loaded context.
	DefaultDaysBack = 7

	localSuffix = ".local"
)

// Store manages the memory directory. Safe for use from one goroutine per
// method; callers serialize writes to the same profile themselves.
type Store struct {
	baseDir string
	now     func() time.Time
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir, now: time.Now}
}

// Initialize creates the directory layout with restrictive permissions.
func (s *Store) Initialize() error {
	for _, dir := range []string{s.baseDir, filepath.Join(s.baseDir, profilesDir), filepath.Join(s.baseDir, sessionsDir)} {
		if info, err := os.Stat(dir); err == nil {
			if !info.IsDir() {
				return fmt.Errorf("memory: path exists but is not a directory: %s", dir)
			}
			if err := os.Chmod(dir, dirPermissions); err != nil {
				return fmt.Errorf("memory: failed to fix permissions on %s: %w", dir, err)
			}
			continue
		}
		if err := os.MkdirAll(dir, dirPermissions); err != nil {
			return fmt.Errorf("memory: failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// LoadContext assembles the memory context string: curated long-term
// memory, per-person profiles, and session summaries from the last daysBack
// days. Sections are joined with a horizontal rule. An empty store yields
// an empty string.
func (s *Store) LoadContext(daysBack int) (string, error) {
	if daysBack <= 0 {
		daysBack = DefaultDaysBack
	}
	var sections []string

	if body, err := s.readIfExists(filepath.Join(s.baseDir, longTermFile)); err != nil {
		return "", err
	} else if body != "" {
		sections = append(sections, "## Long-Term Memory\n"+body)
	}

	profileSections, err := s.loadProfiles()
	if err != nil {
		return "", err
	}
	sections = append(sections, profileSections...)

	if recent, err := s.loadRecentSessions(daysBack); err != nil {
		return "", err
	} else if recent != "" {
		sections = append(sections, recent)
	}

	if len(sections) == 0 {
		return "", nil
	}
	return strings.Join(sections, "\n\n---\n\n"), nil
}

// loadProfiles reads profiles/*.md. A name.local.md file takes precedence
// over name.md so private enrichments shadow the checked-in base profile.
func (s *Store) loadProfiles() ([]string, error) {
	dir := filepath.Join(s.baseDir, profilesDir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: failed to read profiles directory: %w", err)
	}

	names := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".md")
		names[strings.TrimSuffix(name, localSuffix)] = true
	}

	ordered := make([]string, 0, len(names))
	for name := range names {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	var sections []string
	for _, name := range ordered {
		path := filepath.Join(dir, name+localSuffix+".md")
		body, err := s.readIfExists(path)
		if err != nil {
			return nil, err
		}
		if body == "" {
			if body, err = s.readIfExists(filepath.Join(dir, name+".md")); err != nil {
				return nil, err
			}
		}
		if body != "" {
			sections = append(sections, fmt.Sprintf("## About %s\n%s", titleCase(name), body))
		}
	}
	return sections, nil
}

func (s *Store) loadRecentSessions(daysBack int) (string, error) {
	dir := filepath.Join(s.baseDir, sessionsDir)
	var summaries []string
	for i := 0; i < daysBack; i++ {
		date := s.now().AddDate(0, 0, -i).Format("2006-01-02")
		body, err := s.readIfExists(filepath.Join(dir, date+".md"))
		if err != nil {
			return "", err
		}
		if body != "" {
			summaries = append(summaries, "### "+date+"\n"+body)
		}
	}
	if len(summaries) == 0 {
		return "", nil
	}
	return "## Recent Sessions\n" + strings.Join(summaries, "\n\n"), nil
}

// AppendSessionSummary appends summary to today's session log.
func (s *Store) AppendSessionSummary(summary string) error {
	dir := filepath.Join(s.baseDir, sessionsDir)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("memory: failed to create sessions directory: %w", err)
	}

	now := s.now()
	path := filepath.Join(dir, now.Format("2006-01-02")+".md")
	entry := fmt.Sprintf("\n## Session — %s\n%s\n", now.Format("15:04"), summary)
	return s.appendFile(path, entry)
}

// AppendProfileNote appends a dated note to name's profile, creating it if
// needed.
func (s *Store) AppendProfileNote(name, note string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("memory: profile name cannot be empty")
	}
	dir := filepath.Join(s.baseDir, profilesDir)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("memory: failed to create profiles directory: %w", err)
	}

	path := filepath.Join(dir, strings.ToLower(name)+".md")
	entry := fmt.Sprintf("\n### Learned %s\n%s\n", s.now().Format("2006-01-02"), note)
	return s.appendFile(path, entry)
}

func (s *Store) appendFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePermissions)
	if err != nil {
		return fmt.Errorf("memory: failed to open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("memory: failed to write %s: %w", path, err)
	}
	return nil
}

func (s *Store) readIfExists(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		log.Warnf("Failed to read memory file %s: %v", path, err)
		return "", fmt.Errorf("memory: failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// SetClock replaces the time source. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func titleCase(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
