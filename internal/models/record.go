package models

import (
	"bytes"
	"encoding/json"
)

// FieldKind 字段的解析方式
type FieldKind int

const (
	KindURL       FieldKind = iota // 当前页面URL
	KindText                       // 元素文本
	KindInt                        // 去除非数字字符后的整数
	KindSize                       // 拼接所有数字串后的浮点数
	KindAggregate                  // 所有匹配元素去单位后求和
)

// 详情页字段
const (
	FieldURL          = "address_url"
	FieldListingPrice = "address_listing_price"
	FieldBedrooms     = "address_bedrooms"
	FieldBathrooms    = "address_bathrooms"
	FieldCarSpaces    = "address_car_spaces"
	FieldPropertyType = "address_property_type"
	FieldDescription  = "address_description"
	FieldFullAddress  = "address_full_address"
	FieldSize         = "property_size"
	FieldSchoolDist   = "property_distance_from_schools_aggregate"
)

// DefaultFieldOrder 未配置 file_headers 时的字段顺序
var DefaultFieldOrder = []string{
	FieldURL,
	FieldListingPrice,
	FieldBedrooms,
	FieldBathrooms,
	FieldCarSpaces,
	FieldPropertyType,
	FieldDescription,
	FieldFullAddress,
	FieldSize,
	FieldSchoolDist,
}

var fieldKinds = map[string]FieldKind{
	FieldURL:          KindURL,
	FieldListingPrice: KindText,
	FieldBedrooms:     KindInt,
	FieldBathrooms:    KindInt,
	FieldCarSpaces:    KindInt,
	FieldPropertyType: KindText,
	FieldDescription:  KindText,
	FieldFullAddress:  KindText,
	FieldSize:         KindSize,
	FieldSchoolDist:   KindAggregate,
}

// IsKnownField 字段是否可被提取
func IsKnownField(field string) bool {
	_, ok := fieldKinds[field]
	return ok
}

// KindOf 返回字段类型
func KindOf(field string) (FieldKind, bool) {
	k, ok := fieldKinds[field]
	return k, ok
}

// FieldSelectorKey 字段在 xpath 映射中的键,address_url 不需要选择器
func FieldSelectorKey(field string) string {
	if kind, ok := fieldKinds[field]; !ok || kind == KindURL {
		return ""
	}
	return field + "_xpath"
}

// Record 一条详情页记录
// 字段集合固定为构造时的字段顺序,值为 string/int/float64 或 nil
type Record struct {
	fields []string
	values map[string]any
}

// NewRecord 创建所有字段为 nil 的记录
func NewRecord(fieldOrder []string) *Record {
	r := &Record{
		fields: append([]string(nil), fieldOrder...),
		values: make(map[string]any, len(fieldOrder)),
	}
	for _, f := range fieldOrder {
		r.values[f] = nil
	}
	return r
}

// Set 设置字段值,不在字段顺序中的字段被忽略
func (r *Record) Set(field string, value any) bool {
	if _, ok := r.values[field]; !ok {
		return false
	}
	r.values[field] = value
	return true
}

// Get 读取字段值
func (r *Record) Get(field string) (any, bool) {
	v, ok := r.values[field]
	return v, ok
}

// Fields 字段顺序
func (r *Record) Fields() []string {
	return r.fields
}

// Values 按指定顺序返回值,未知字段为 nil
func (r *Record) Values(order []string) []any {
	out := make([]any, len(order))
	for i, f := range order {
		out[i] = r.values[f]
	}
	return out
}

// NullCount 值为 nil 的字段数
func (r *Record) NullCount() int {
	n := 0
	for _, f := range r.fields {
		if r.values[f] == nil {
			n++
		}
	}
	return n
}

// MarshalJSON 按字段顺序输出JSON对象
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.values[f])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
