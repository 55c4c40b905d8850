package main

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
)
import _ "github.com/mattn/go-sqlite3"

// Storage keeps the subscriber→group registrations. The monitor deletes
// subscribers through it when notification delivery fails irrecoverably.
type Storage struct {
	d *sql.DB

	setGroup   *sql.Stmt
	getGroup   *sql.Stmt
	removeUser *sql.Stmt
	touchUser  *sql.Stmt
	allChats   *sql.Stmt
	countUsers *sql.Stmt
}

func NewStorage(path string) (*Storage, error) {
	st := new(Storage)
	var err error
	st.d, err = sql.Open("sqlite3", path+"?_journal=WAL&cache=shared")
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}

	if _, err := st.d.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		return nil, errors.Wrap(err, "set pragma journal mode")
	}
	if _, err := st.d.Exec(`PRAGMA synchronous = NORMAL`); err != nil {
		return nil, errors.Wrap(err, "set pragma synchronous")
	}
	if _, err := st.d.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			chat_id INTEGER PRIMARY KEY,
			group_name TEXT NOT NULL,
			username TEXT,
			created_at TEXT NOT NULL,
			last_activity TEXT NOT NULL
		)
	`); err != nil {
		return nil, errors.Wrap(err, "create table")
	}

	st.setGroup, err = st.d.Prepare(`
		INSERT INTO users(chat_id, group_name, username, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			group_name = excluded.group_name,
			username = excluded.username,
			last_activity = excluded.last_activity`)
	if err != nil {
		return nil, errors.Wrap(err, "prepare setGroup")
	}
	st.getGroup, err = st.d.Prepare(`
		SELECT group_name FROM users WHERE chat_id = ?`)
	if err != nil {
		return nil, errors.Wrap(err, "prepare getGroup")
	}
	st.removeUser, err = st.d.Prepare(`
		DELETE FROM users WHERE chat_id = ?`)
	if err != nil {
		return nil, errors.Wrap(err, "prepare removeUser")
	}
	st.touchUser, err = st.d.Prepare(`
		UPDATE users SET last_activity = ? WHERE chat_id = ?`)
	if err != nil {
		return nil, errors.Wrap(err, "prepare touchUser")
	}
	st.allChats, err = st.d.Prepare(`
		SELECT chat_id FROM users`)
	if err != nil {
		return nil, errors.Wrap(err, "prepare allChats")
	}
	st.countUsers, err = st.d.Prepare(`
		SELECT COUNT(*) FROM users`)
	if err != nil {
		return nil, errors.Wrap(err, "prepare countUsers")
	}
	return st, nil
}

func (st *Storage) Close() error {
	st.setGroup.Close()
	st.getGroup.Close()
	st.removeUser.Close()
	st.touchUser.Close()
	st.allChats.Close()
	st.countUsers.Close()
	return st.d.Close()
}

func (st *Storage) SetUserGroup(chatID int64, group, username string) error {
	now := time.Now().Format(time.RFC3339)
	_, err := st.setGroup.Exec(chatID, group, username, now, now)
	return errors.Wrapf(err, "setUserGroup chat_id=%d", chatID)
}

// UserGroup returns the stored group for a chat, or "" when the chat
// never registered one.
func (st *Storage) UserGroup(chatID int64) (string, error) {
	var group string
	err := st.getGroup.QueryRow(chatID).Scan(&group)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return group, errors.Wrapf(err, "userGroup chat_id=%d", chatID)
}

func (st *Storage) RemoveUser(chatID int64) error {
	_, err := st.removeUser.Exec(chatID)
	return errors.Wrapf(err, "removeUser chat_id=%d", chatID)
}

func (st *Storage) TouchActivity(chatID int64) error {
	_, err := st.touchUser.Exec(time.Now().Format(time.RFC3339), chatID)
	return errors.Wrapf(err, "touchActivity chat_id=%d", chatID)
}

func (st *Storage) ChatIDs() ([]int64, error) {
	rows, err := st.allChats.Query()
	if err != nil {
		return nil, errors.Wrap(err, "allChats")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan chat_id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (st *Storage) UserCount() (int, error) {
	var n int
	err := st.countUsers.QueryRow().Scan(&n)
	return n, errors.Wrap(err, "countUsers")
}
