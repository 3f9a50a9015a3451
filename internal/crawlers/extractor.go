package crawlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/RecoveryAshes/PageCrawl/internal/browser"
	"github.com/RecoveryAshes/PageCrawl/internal/models"
	"github.com/RecoveryAshes/PageCrawl/internal/utils"
)

// RecordSink 记录输出
type RecordSink interface {
	Append(rec *models.Record, fieldOrder []string) error
}

var (
	nonDigit  = regexp.MustCompile(`[^0-9]`)
	digitRuns = regexp.MustCompile(`[0-9]+`)

	errNoDigits = errors.New("没有数字")
)

// Extractor 从详情页提取一条记录,字段之间互不影响
type Extractor struct {
	driver browser.Driver
	cfg    *models.CrawlConfig
	sink   RecordSink
	waiter *Waiter

	sinkErrors int
}

// NewExtractor 创建提取器,sink 可以为 nil
func NewExtractor(driver browser.Driver, cfg *models.CrawlConfig, sink RecordSink, waiter *Waiter) *Extractor {
	return &Extractor{driver: driver, cfg: cfg, sink: sink, waiter: waiter}
}

// SinkErrors 写入失败次数
func (e *Extractor) SinkErrors() int {
	return e.sinkErrors
}

// Extract 打开详情页并提取全部字段
// 只有导航失败或上下文取消会返回错误,单个字段失败记为 nil;提取中被取消时不写入记录
func (e *Extractor) Extract(ctx context.Context, link string) (*models.Record, error) {
	if err := e.driver.Navigate(ctx, link); err != nil {
		return nil, withPhase(err, "detail")
	}

	order := e.cfg.FieldOrder()
	rec := models.NewRecord(order)
	for _, field := range order {
		value, err := e.extractField(ctx, field)
		if err != nil {
			if models.IsElementNotFound(err) {
				utils.Debugf("字段 %s 缺失: %v", field, err)
			} else {
				utils.Warnf("字段 %s 提取失败 [%s]: %v", field, link, err)
			}
			continue
		}
		rec.Set(field, value)
	}
	// 中断时字段失败并非元素缺失,不输出残缺记录
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if data, err := json.Marshal(rec); err == nil {
		utils.Infof("%s", data)
	}

	if e.sink != nil {
		if err := e.sink.Append(rec, order); err != nil {
			e.sinkErrors++
			utils.Errorf("写入记录失败 [%s]: %v", link, err)
		}
	}

	if _, err := e.waiter.Delay(ctx); err != nil {
		return rec, err
	}
	return rec, nil
}

// extractField 按字段类型提取,返回 nil 值表示字段为空
func (e *Extractor) extractField(ctx context.Context, field string) (any, error) {
	kind, ok := models.KindOf(field)
	if !ok {
		return nil, fmt.Errorf("未知字段 %s", field)
	}
	if kind == models.KindURL {
		return e.driver.CurrentURL(ctx)
	}

	selector, ok := e.cfg.Selector(models.FieldSelectorKey(field))
	if !ok {
		return nil, &models.ElementNotFoundError{Selector: models.FieldSelectorKey(field)}
	}

	if kind == models.KindAggregate {
		return e.aggregate(ctx, selector)
	}

	el, err := e.driver.FindElement(ctx, selector)
	if err != nil {
		return nil, err
	}
	text, err := el.Text()
	if err != nil {
		return nil, fmt.Errorf("读取文本失败: %w", err)
	}

	switch kind {
	case models.KindInt:
		return ParseInt(text)
	case models.KindSize:
		return ParseSize(text)
	default:
		return strings.TrimSpace(text), nil
	}
}

// aggregate 对所有匹配元素求和,没有可解析的值时为 nil
func (e *Extractor) aggregate(ctx context.Context, selector string) (any, error) {
	els, err := e.driver.FindElements(ctx, selector)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(els))
	for _, el := range els {
		text, err := el.Text()
		if err != nil {
			utils.Debugf("读取聚合元素失败: %v", err)
			continue
		}
		texts = append(texts, text)
	}
	sum, ok := SumDistances(texts)
	if !ok {
		return nil, &models.ElementNotFoundError{Selector: selector}
	}
	return sum, nil
}

// ParseInt 去除非数字字符后解析整数,如 `3"` -> 3
func ParseInt(text string) (int, error) {
	digits := nonDigit.ReplaceAllString(text, "")
	if digits == "" {
		return 0, fmt.Errorf("%w: %q", errNoDigits, text)
	}
	return strconv.Atoi(digits)
}

// ParseSize 拼接所有数字串后解析为浮点数,如 "1,200 sqm" -> 1200
func ParseSize(text string) (float64, error) {
	digits := strings.Join(digitRuns.FindAllString(text, -1), "")
	if digits == "" {
		return 0, fmt.Errorf("%w: %q", errNoDigits, text)
	}
	return strconv.ParseFloat(digits, 64)
}

// ParseDistance 去掉 km 单位后解析,只接受有限值
func ParseDistance(text string) (float64, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(s, "km"), "KM"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("距离不是有限值: %q", text)
	}
	return v, nil
}

// SumDistances 求和,跳过无法解析的项;没有任何有效值时 ok 为 false
func SumDistances(texts []string) (sum float64, ok bool) {
	for _, t := range texts {
		v, err := ParseDistance(t)
		if err != nil {
			utils.Debugf("跳过无法解析的距离 %q", t)
			continue
		}
		sum += v
		ok = true
	}
	return sum, ok
}

// withPhase 为导航超时错误补充阶段
func withPhase(err error, phase string) error {
	var nav *models.NavigationTimeoutError
	if errors.As(err, &nav) && nav.Phase == "" {
		nav.Phase = phase
	}
	return err
}
