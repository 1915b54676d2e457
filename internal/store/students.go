package store

import (
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/grader/internal/model"
)

// StudentEmail derives the placeholder address stored for a student name.
func StudentEmail(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", ".") + "@example.com"
}

type queryExecer interface {
	QueryRow(query string, args ...any) *sql.Row
	Exec(query string, args ...any) (sql.Result, error)
}

func getOrCreateStudent(q queryExecer, name string) (model.Student, error) {
	var st model.Student
	err := q.QueryRow(`SELECT id, name, email, created_at FROM students WHERE name = ?`, name).
		Scan(&st.ID, &st.Name, &st.Email, &st.CreatedAt)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return st, err
	}

	st = model.Student{Name: name, Email: StudentEmail(name), CreatedAt: time.Now()}
	res, err := q.Exec(`INSERT INTO students (name, email, created_at) VALUES (?, ?, ?)`,
		st.Name, st.Email, st.CreatedAt)
	if err != nil {
		return st, err
	}
	if st.ID, err = res.LastInsertId(); err != nil {
		return st, err
	}
	slog.Debug("created student", "id", st.ID, "name", st.Name)
	return st, nil
}

// GetOrCreateStudent returns the student with the given name, creating it
// if needed.
func (s *Store) GetOrCreateStudent(name string) (model.Student, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return getOrCreateStudent(s.db, name)
}

// ListStudents returns all students ordered by name.
func (s *Store) ListStudents() ([]model.Student, error) {
	rows, err := s.db.Query(`SELECT id, name, email, created_at FROM students ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var students []model.Student
	for rows.Next() {
		var st model.Student
		if err := rows.Scan(&st.ID, &st.Name, &st.Email, &st.CreatedAt); err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}
