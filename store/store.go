/*
Package store keeps a history of encoded frame sequences in a SQLite
database.

Each stream is a sequence of keyframes and deltas exactly as produced by
epaperify.EncodeSequence, so any frame can be rebuilt from the nearest
keyframe at or before it.
*/
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tmpim/epaperify"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a stream or frame does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is a frame history database.
type Store struct {
	db *sql.DB
}

// Stream describes a recorded stream.
type Stream struct {
	ID       int64
	Name     string
	Header   epaperify.Header
	Palette  string
	Codec    epaperify.Codec
	Created  time.Time
	Frames   int
	Bytes    int64
	Keyframe int
}

// FrameInfo describes one stored frame without its data.
type FrameInfo struct {
	Seq      uint32
	Keyframe bool
	Size     int
}

// Open opens or creates the database at file.
func Open(file string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on", file))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS stream (id INTEGER PRIMARY KEY NOT NULL, name TEXT NOT NULL, width INTEGER NOT NULL, height INTEGER NOT NULL, channels INTEGER NOT NULL, palette TEXT NOT NULL, codec INTEGER NOT NULL, created INTEGER NOT NULL)"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS frame (stream_id INTEGER NOT NULL, seq INTEGER NOT NULL, keyframe INTEGER NOT NULL, data BLOB NOT NULL, PRIMARY KEY (stream_id, seq), FOREIGN KEY(stream_id) REFERENCES stream(id) ON DELETE CASCADE)"); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db: db,
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateStream records a new stream and returns its ID.
func (s *Store) CreateStream(name string, h epaperify.Header, p epaperify.Palette, codec epaperify.Codec) (int64, error) {
	result, err := s.db.Exec("INSERT INTO stream (name, width, height, channels, palette, codec, created) VALUES (?, ?, ?, ?, ?, ?, ?)",
		name, h.Width, h.Height, h.Channels, p.String(), int(codec), time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// Append stores a frame of a stream. Frames must match the stream's header
// and codec.
func (s *Store) Append(streamID int64, d epaperify.Delta) error {
	h, codec, err := s.layout(streamID)
	if err != nil {
		return err
	}
	if d.Header.Samples() != h.Samples() || d.Codec != codec {
		return fmt.Errorf("store: Append: frame %d does not match stream %d", d.Seq, streamID)
	}

	_, err = s.db.Exec("INSERT INTO frame (stream_id, seq, keyframe, data) VALUES (?, ?, ?, ?)",
		streamID, int64(d.Seq), d.Keyframe, d.Data)
	return err
}

func (s *Store) layout(streamID int64) (epaperify.Header, epaperify.Codec, error) {
	var h epaperify.Header
	var codec int
	switch err := s.db.QueryRow("SELECT width, height, channels, codec FROM stream WHERE id = ?", streamID).
		Scan(&h.Width, &h.Height, &h.Channels, &codec); err {
	case sql.ErrNoRows:
		return h, 0, ErrNotFound
	case nil:
	default:
		return h, 0, err
	}
	return h, epaperify.Codec(codec), nil
}

// Stream returns a stream's description.
func (s *Store) Stream(streamID int64) (*Stream, error) {
	st := Stream{ID: streamID}
	var codec int
	var created int64
	var keyframes sql.NullInt64
	var total sql.NullInt64

	switch err := s.db.QueryRow("SELECT s.name, s.width, s.height, s.channels, s.palette, s.codec, s.created, COUNT(f.seq), SUM(LENGTH(f.data)), SUM(f.keyframe) FROM stream AS s LEFT JOIN frame AS f ON f.stream_id = s.id WHERE s.id = ? GROUP BY s.id", streamID).
		Scan(&st.Name, &st.Header.Width, &st.Header.Height, &st.Header.Channels, &st.Palette, &codec, &created, &st.Frames, &total, &keyframes); err {
	case sql.ErrNoRows:
		return nil, ErrNotFound
	case nil:
	default:
		return nil, err
	}

	st.Codec = epaperify.Codec(codec)
	st.Created = time.Unix(created, 0)
	st.Bytes = total.Int64
	st.Keyframe = int(keyframes.Int64)
	return &st, nil
}

// Streams lists every stream, oldest first.
func (s *Store) Streams() ([]*Stream, error) {
	rows, err := s.db.Query("SELECT id FROM stream ORDER BY id")
	if err != nil {
		return nil, err
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	streams := make([]*Stream, 0, len(ids))
	for _, id := range ids {
		st, err := s.Stream(id)
		if err != nil {
			return nil, err
		}
		streams = append(streams, st)
	}
	return streams, nil
}

// Frames lists the frames of a stream in order.
func (s *Store) Frames(streamID int64) ([]FrameInfo, error) {
	rows, err := s.db.Query("SELECT seq, keyframe, LENGTH(data) FROM frame WHERE stream_id = ? ORDER BY seq", streamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []FrameInfo
	for rows.Next() {
		var f FrameInfo
		if err := rows.Scan(&f.Seq, &f.Keyframe, &f.Size); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// Reconstruct rebuilds frame seq of a stream from the latest keyframe at or
// before it and every delta in between.
func (s *Store) Reconstruct(streamID int64, seq uint32) (*epaperify.Frame, error) {
	st, err := s.Stream(streamID)
	if err != nil {
		return nil, err
	}

	var start sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(seq) FROM frame WHERE stream_id = ? AND seq <= ? AND keyframe = 1", streamID, int64(seq)).Scan(&start); err != nil {
		return nil, err
	}
	if !start.Valid {
		return nil, ErrNotFound
	}

	rows, err := s.db.Query("SELECT seq, keyframe, data FROM frame WHERE stream_id = ? AND seq >= ? AND seq <= ? ORDER BY seq", streamID, start.Int64, int64(seq))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	header := st.Header
	header.ColorSpace = epaperify.SRGB

	var frame *epaperify.Frame
	expected := uint32(start.Int64)
	for rows.Next() {
		d := epaperify.Delta{Header: header, Codec: st.Codec}
		if err := rows.Scan(&d.Seq, &d.Keyframe, &d.Data); err != nil {
			return nil, err
		}
		if d.Seq != expected {
			return nil, fmt.Errorf("store: Reconstruct: frame %d is missing", expected)
		}

		frame, err = d.Apply(frame)
		if err != nil {
			return nil, fmt.Errorf("store: Reconstruct: frame %d: %w", d.Seq, err)
		}
		expected++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if frame == nil || expected != seq+1 {
		return nil, ErrNotFound
	}
	return frame, nil
}

// DeleteStream removes a stream and its frames.
func (s *Store) DeleteStream(streamID int64) error {
	result, err := s.db.Exec("DELETE FROM stream WHERE id = ?", streamID)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
