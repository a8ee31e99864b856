package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
)

// FileAppender - JSON lines в файл с ротацией
type FileAppender struct {
	mu          sync.Mutex
	file        *os.File
	filePath    string
	maxSize     int64
	maxBackups  int
	compress    bool
	currentSize int64
	level       Level
}

// FileAppenderConfig - конфигурация file appender
type FileAppenderConfig struct {
	FilePath string

	// MaxSize - порог ротации в байтах (по умолчанию 100 MB)
	MaxSize int64

	// MaxBackups - количество хранимых backup файлов (по умолчанию 5)
	MaxBackups int

	// Compress - сжимать backup файлы zstd (<path>.N.zst)
	Compress bool

	Level Level
}

// NewFileAppender - создать file appender
func NewFileAppender(config FileAppenderConfig) (*FileAppender, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("audit: file path is required")
	}

	dir := filepath.Dir(config.FilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	if config.MaxSize <= 0 {
		config.MaxSize = 100 * 1024 * 1024
	}
	if config.MaxBackups <= 0 {
		config.MaxBackups = 5
	}

	return &FileAppender{
		file:        file,
		filePath:    config.FilePath,
		maxSize:     config.MaxSize,
		maxBackups:  config.MaxBackups,
		compress:    config.Compress,
		currentSize: info.Size(),
		level:       config.Level,
	}, nil
}

// Append - записать entry одной строкой JSON
func (fa *FileAppender) Append(ctx context.Context, entry *Entry) error {
	data, err := entry.FilterByLevel(fa.level).ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	data = append(data, '\n')

	fa.mu.Lock()
	defer fa.mu.Unlock()

	if fa.file == nil {
		return fmt.Errorf("audit file %s is closed", fa.filePath)
	}

	if fa.currentSize > 0 && fa.currentSize+int64(len(data)) > fa.maxSize {
		if err := fa.rotate(); err != nil {
			return fmt.Errorf("failed to rotate file: %w", err)
		}
	}

	n, err := fa.file.Write(data)
	fa.currentSize += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	return nil
}

// BackupPath - путь к backup файлу с номером n (1 - самый свежий)
func (fa *FileAppender) BackupPath(n int) string {
	if fa.compress {
		return fmt.Sprintf("%s.%d.zst", fa.filePath, n)
	}
	return fmt.Sprintf("%s.%d", fa.filePath, n)
}

// rotate - сдвиг backup файлов и новый текущий файл
func (fa *FileAppender) rotate() error {
	if err := fa.file.Close(); err != nil {
		return err
	}
	fa.file = nil

	os.Remove(fa.BackupPath(fa.maxBackups))
	for i := fa.maxBackups - 1; i > 0; i-- {
		if _, err := os.Stat(fa.BackupPath(i)); err == nil {
			if err := os.Rename(fa.BackupPath(i), fa.BackupPath(i+1)); err != nil {
				return err
			}
		}
	}

	if fa.compress {
		if err := compressFile(fa.filePath, fa.BackupPath(1)); err != nil {
			return err
		}
		if err := os.Remove(fa.filePath); err != nil {
			return err
		}
	} else if err := os.Rename(fa.filePath, fa.BackupPath(1)); err != nil {
		return err
	}

	file, err := os.OpenFile(fa.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	fa.file = file
	fa.currentSize = 0
	return nil
}

// compressFile - src → dst в формате zstd
func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		out.Close()
		return err
	}

	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		out.Close()
		return fmt.Errorf("compress %s: %w", src, err)
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Close - закрыть файл
func (fa *FileAppender) Close() error {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if fa.file == nil {
		return nil
	}
	err := fa.file.Close()
	fa.file = nil
	return err
}

// Flush - fsync текущего файла
func (fa *FileAppender) Flush() error {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if fa.file != nil {
		return fa.file.Sync()
	}
	return nil
}

// CurrentSize - текущий размер файла
func (fa *FileAppender) CurrentSize() int64 {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.currentSize
}

func (fa *FileAppender) Name() string {
	return "file"
}

// LogAppender - дублирует audit entries в zerolog
type LogAppender struct {
	logger zerolog.Logger
	level  Level
}

// NewLogAppender - создать log appender
func NewLogAppender(logger zerolog.Logger, level Level) *LogAppender {
	return &LogAppender{logger: logger, level: level}
}

// Append - info для успешных мутаций, warn для неудачных
func (la *LogAppender) Append(ctx context.Context, entry *Entry) error {
	filtered := entry.FilterByLevel(la.level)

	event := la.logger.Info()
	if filtered.Status == StatusFailure {
		event = la.logger.Warn().Str("error", filtered.Error)
	}

	event = event.
		Str("audit_id", filtered.ID).
		Str("operation", string(filtered.Operation)).
		Str("table", filtered.Table).
		Str("changed_by", filtered.ChangedBy)
	if filtered.RecordID != "" {
		event = event.Str("record_id", filtered.RecordID)
	}
	if len(filtered.Metadata) > 0 {
		event = event.Interface("metadata", filtered.Metadata)
	}
	if len(filtered.Data) > 0 {
		event = event.Interface("data", filtered.Data)
	}

	event.Msg(filtered.Summary())
	return nil
}

func (la *LogAppender) Close() error {
	return nil
}

func (la *LogAppender) Name() string {
	return "log"
}
