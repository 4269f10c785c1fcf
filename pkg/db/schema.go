package db

import (
	"context"
	"fmt"
	"log/slog"
)

// Tables lists the CREATE statements for every table, in creation order.
var Tables = []struct {
	Name string
	CQL  string
}{
	{"users", `CREATE TABLE IF NOT EXISTS users (
		id text PRIMARY KEY,
		name text,
		username text,
		online boolean,
		last_seen timestamp,
		blocked_users set<text>
	)`},
	{"conversations", `CREATE TABLE IF NOT EXISTS conversations (
		id text PRIMARY KEY,
		is_group boolean,
		name text,
		participants set<text>,
		admins set<text>,
		archived_by set<text>,
		created_at timestamp,
		updated_at timestamp
	)`},
	// One row per unordered pair; written only with IF NOT EXISTS.
	{"direct_conversations", `CREATE TABLE IF NOT EXISTS direct_conversations (
		pair_key text PRIMARY KEY,
		conversation_id text
	)`},
	{"user_archives", `CREATE TABLE IF NOT EXISTS user_archives (
		user_id text,
		conversation_id text,
		PRIMARY KEY (user_id, conversation_id)
	)`},
	{"messages", `CREATE TABLE IF NOT EXISTS messages (
		conversation_id text,
		id bigint,
		sender_id text,
		receiver_id text,
		is_group boolean,
		content text,
		media_url text,
		media_name text,
		media_mime text,
		media_size bigint,
		media_type text,
		reply_to text,
		is_forwarded boolean,
		forwarded_from text,
		deleted_by set<text>,
		deleted_for_everyone boolean,
		starred_by set<text>,
		created_at timestamp,
		PRIMARY KEY (conversation_id, id)
	) WITH CLUSTERING ORDER BY (id DESC)`},
	{"messages_by_id", `CREATE TABLE IF NOT EXISTS messages_by_id (
		id bigint PRIMARY KEY,
		conversation_id text
	)`},
	// state: 1 delivered, 2 seen. Written only through LWT.
	{"message_receipts", `CREATE TABLE IF NOT EXISTS message_receipts (
		message_id bigint,
		user_id text,
		state int,
		PRIMARY KEY (message_id, user_id)
	)`},
	{"pending_receipts", `CREATE TABLE IF NOT EXISTS pending_receipts (
		recipient_id text,
		message_id bigint,
		PRIMARY KEY (recipient_id, message_id)
	)`},
	{"user_starred", `CREATE TABLE IF NOT EXISTS user_starred (
		user_id text,
		message_id bigint,
		PRIMARY KEY (user_id, message_id)
	) WITH CLUSTERING ORDER BY (message_id DESC)`},
	{"user_conversations", `CREATE TABLE IF NOT EXISTS user_conversations (
		user_id text,
		conversation_id text,
		last_updated timestamp,
		PRIMARY KEY (user_id, conversation_id)
	)`},
	{"conversation_counters", `CREATE TABLE IF NOT EXISTS conversation_counters (
		user_id text,
		conversation_id text,
		unread_count counter,
		PRIMARY KEY (user_id, conversation_id)
	)`},
}

// EnsureSchema creates the keyspace and all tables if missing.
func EnsureSchema(ctx context.Context, hosts []string, keyspace string, replication int) error {
	sys, err := NewSession(hosts, "system")
	if err != nil {
		return fmt.Errorf("connect system keyspace: %w", err)
	}
	stmt := fmt.Sprintf(
		`CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : %d }`,
		keyspace, replication,
	)
	err = sys.Query(stmt).WithContext(ctx).Exec()
	sys.Close()
	if err != nil {
		return fmt.Errorf("create keyspace %s: %w", keyspace, err)
	}

	session, err := NewSession(hosts, keyspace)
	if err != nil {
		return fmt.Errorf("connect keyspace %s: %w", keyspace, err)
	}
	defer session.Close()

	for _, t := range Tables {
		if err := session.Query(t.CQL).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
		slog.Debug("table ready", slog.String("table", t.Name))
	}
	return nil
}

// DropSchema drops every table in reverse creation order.
func DropSchema(ctx context.Context, session *Session) error {
	for i := len(Tables) - 1; i >= 0; i-- {
		name := Tables[i].Name
		if err := session.Query("DROP TABLE IF EXISTS " + name).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("drop table %s: %w", name, err)
		}
	}
	return nil
}
