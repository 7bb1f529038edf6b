package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// envOverlay 按 `env` 标签把环境变量写入配置树，并记录实际生效的变量名
type envOverlay struct {
	lookup  func(string) (string, bool)
	applied []string
}

func newEnvOverlay() *envOverlay {
	return &envOverlay{lookup: os.LookupEnv}
}

// apply 遍历 v 的字段；嵌套结构体的键为 父键_子标签
func (o *envOverlay) apply(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := range t.NumField() {
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag
		field := v.Field(i)

		if field.Kind() == reflect.Struct {
			if err := o.apply(field, key); err != nil {
				return err
			}
			continue
		}

		raw, ok := o.lookup(key)
		if !ok || raw == "" || !field.CanSet() {
			continue
		}
		if err := parseInto(field, raw); err != nil {
			return fmt.Errorf("%s=%q: %w", key, raw, err)
		}
		o.applied = append(o.applied, key)
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// parseInto 支持字符串、数值、布尔、time.Duration 与逗号分隔的 []string
func parseInto(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		var items []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// =============================================================================
// 🧩 工作坊环境变量
// =============================================================================

// legacyBinding 把无前缀的环境变量映射到配置字段，列表中靠前的名称优先
type legacyBinding struct {
	names []string
	field func(*Config) *string
}

var legacyBindings = []legacyBinding{
	{[]string{"AZURE_OPENAI_ENDPOINT", "AOI_ENDPOINT"}, func(c *Config) *string { return &c.AzureOpenAI.Endpoint }},
	{[]string{"AZURE_OPENAI_API_KEY", "AOI_API_KEY"}, func(c *Config) *string { return &c.AzureOpenAI.APIKey }},
	{[]string{"AZURE_OPENAI_API_VERSION"}, func(c *Config) *string { return &c.AzureOpenAI.APIVersion }},
	{[]string{"AZURE_OPENAI_CHAT_DEPLOYMENT_NAME", "AOI_DEPLOYMODEL"}, func(c *Config) *string { return &c.AzureOpenAI.ChatDeployment }},
	{[]string{"AZURE_OPENAI_EMBEDDING_DEPLOYMENT", "AZURE_OPENAI_EMBED_DEPLOYMENT_NAME", "EMBEDDINGS_DEPLOYMODEL"}, func(c *Config) *string { return &c.AzureOpenAI.EmbeddingDeployment }},
	{[]string{"AZURE_TEXT_TO_IMAGE_DEPLOYMENT_NAME"}, func(c *Config) *string { return &c.AzureOpenAI.ImageDeployment }},
	{[]string{"AZURE_TEXT_TO_IMAGE_ENDPOINT"}, func(c *Config) *string { return &c.AzureOpenAI.ImageEndpoint }},
	{[]string{"AZURE_TEXT_TO_IMAGE_API_KEY"}, func(c *Config) *string { return &c.AzureOpenAI.ImageAPIKey }},
	{[]string{"AI_SEARCH_URL"}, func(c *Config) *string { return &c.Plugins.Search.Endpoint }},
	{[]string{"AI_SEARCH_KEY"}, func(c *Config) *string { return &c.Plugins.Search.APIKey }},
	{[]string{"AZURE_SEARCH_INDEX"}, func(c *Config) *string { return &c.Plugins.Search.Index }},
	{[]string{"GEOCODING_API_KEY"}, func(c *Config) *string { return &c.Plugins.Geocoding.APIKey }},
}

func (o *envOverlay) applyLegacy(cfg *Config) {
	for _, b := range legacyBindings {
		for _, name := range b.names {
			if v, ok := o.lookup(name); ok && v != "" {
				*b.field(cfg) = v
				o.applied = append(o.applied, name)
				break
			}
		}
	}
}
