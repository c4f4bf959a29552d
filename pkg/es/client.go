// Package es 提供了与 Elasticsearch 交互的客户端功能，用于历史人物全文检索。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"histai-go/internal/config"
	"histai-go/internal/model"
	"histai-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// 人物索引的 mapping，名称字段同时提供 edge_ngram 子字段以支持前缀补全
const personMapping = `{
	"settings": {
		"analysis": {
			"analyzer": {
				"autocomplete": {
					"tokenizer": "autocomplete_tokenizer",
					"filter": ["lowercase"]
				}
			},
			"tokenizer": {
				"autocomplete_tokenizer": {
					"type": "edge_ngram",
					"min_gram": 2,
					"max_gram": 20,
					"token_chars": ["letter", "digit"]
				}
			}
		}
	},
	"mappings": {
		"properties": {
			"person_id": { "type": "long" },
			"name": {
				"type": "text",
				"fields": {
					"prefix": { "type": "text", "analyzer": "autocomplete", "search_analyzer": "standard" },
					"keyword": { "type": "keyword" }
				}
			},
			"name_en": { "type": "text" },
			"description": { "type": "text" },
			"era": { "type": "keyword" },
			"category": { "type": "keyword" },
			"country": { "type": "keyword" }
		}
	}
}`

// InitES 初始化 Elasticsearch 客户端并确保人物索引存在
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return NewPersonIndex(client, esCfg.IndexName).EnsureIndex(context.Background())
}

// PersonIndex 封装人物索引的读写
type PersonIndex struct {
	client *elasticsearch.Client
	index  string
}

// NewPersonIndex 创建 PersonIndex
func NewPersonIndex(client *elasticsearch.Client, index string) *PersonIndex {
	return &PersonIndex{client: client, index: index}
}

// Available 返回索引是否可用
func (p *PersonIndex) Available() bool {
	return p != nil && p.client != nil
}

// EnsureIndex 检查索引是否存在，如果不存在则创建它
func (p *PersonIndex) EnsureIndex(ctx context.Context) error {
	res, err := p.client.Indices.Exists([]string{p.index}, p.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", p.index)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = p.client.Indices.Create(
		p.index,
		p.client.Indices.Create.WithBody(strings.NewReader(personMapping)),
		p.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", p.index, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", p.index, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}
	log.Infof("索引 '%s' 创建成功", p.index)
	return nil
}

// IndexPerson 写入或覆盖单个人物文档，文档 ID 为人物 ID
func (p *PersonIndex) IndexPerson(ctx context.Context, doc model.PersonDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{
		Index:      p.index,
		DocumentID: strconv.FormatUint(uint64(doc.PersonID), 10),
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, p.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("索引人物到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index person")
	}
	return nil
}

// DeletePerson 删除人物文档，文档不存在时忽略
func (p *PersonIndex) DeletePerson(ctx context.Context, personID uint) error {
	res, err := p.client.Delete(p.index, strconv.FormatUint(uint64(personID), 10), p.client.Delete.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete person document: %s", res.String())
	}
	return nil
}

// SearchQuery 构造模糊多字段查询，名称权重最高，可按时代与分类过滤
func SearchQuery(query, era, category string, size int) map[string]interface{} {
	must := []interface{}{
		map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     query,
				"fields":    []string{"name^3", "name.prefix^2", "name_en^2", "description"},
				"fuzziness": "AUTO",
			},
		},
	}
	var filter []interface{}
	if era != "" {
		filter = append(filter, map[string]interface{}{"term": map[string]interface{}{"era": era}})
	}
	if category != "" {
		filter = append(filter, map[string]interface{}{"term": map[string]interface{}{"category": category}})
	}
	boolQuery := map[string]interface{}{"must": must}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}
	return map[string]interface{}{
		"size":    size,
		"query":   map[string]interface{}{"bool": boolQuery},
		"_source": []string{"person_id"},
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source model.PersonDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchPersonIDs 返回按相关度排序的人物 ID
func (p *PersonIndex) SearchPersonIDs(ctx context.Context, query, era, category string, size int) ([]uint, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(SearchQuery(query, era, category, size)); err != nil {
		return nil, err
	}
	res, err := p.client.Search(
		p.client.Search.WithContext(ctx),
		p.client.Search.WithIndex(p.index),
		p.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search error: %s", res.String())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	ids := make([]uint, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		ids = append(ids, h.Source.PersonID)
	}
	return ids, nil
}
