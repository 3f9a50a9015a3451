package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/RecoveryAshes/PageCrawl/internal/models"
)

// CSVSink 追加写入CSV文件,文件为空时先写表头
// 每次写入都重新打开文件,中途中止时已写入的行保留在磁盘上
type CSVSink struct {
	path string
	mu   sync.Mutex
	rows int
}

// NewCSVSink 创建CSV输出,必要时创建父目录
func NewCSVSink(path string) (*CSVSink, error) {
	if path == "" {
		return nil, &models.ConfigurationError{Field: "outfile", Reason: "输出文件不能为空"}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建输出目录失败: %w", err)
		}
	}
	return &CSVSink{path: path}, nil
}

// Path 输出文件路径
func (s *CSVSink) Path() string {
	return s.path
}

// Rows 本次写入的行数,不含表头
func (s *CSVSink) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// Append 按字段顺序写入一行
func (s *CSVSink) Append(rec *models.Record, fieldOrder []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("打开输出文件失败: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("读取输出文件信息失败: %w", err)
	}

	w := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := w.Write(fieldOrder); err != nil {
			return fmt.Errorf("写入表头失败: %w", err)
		}
	}

	values := rec.Values(fieldOrder)
	row := make([]string, len(values))
	for i, v := range values {
		row[i] = FormatValue(v)
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("写入记录失败: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("刷新输出失败: %w", err)
	}
	s.rows++
	return nil
}

// FormatValue 单元格文本,nil 为空串
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
