package search

import (
	"encoding/json"
	"strings"
)

// document は検索ドキュメントからスコアリングに使うフィールドを取り出した構造。
type document struct {
	// Name はエンティティの名前。
	Name string `json:"name"`
	// Title はNameがない場合に使う表示名。
	Title string `json:"title"`
	// Description はエンティティの説明。
	Description string `json:"description"`
	// Content はDescriptionがない場合に使う本文。
	Content string `json:"content"`
	// Type はドキュメントが自己申告する種別。
	Type string `json:"type"`
	// Tags はタグ一覧。
	Tags []string `json:"tags"`
}

// parseDocument は検索ドキュメントをパースする。
// スコアリング対象外のフィールドは無視される。
func parseDocument(searchData json.RawMessage) document {
	var doc document
	// パースできないドキュメントはスコア0として扱う
	_ = json.Unmarshal(searchData, &doc)
	return doc
}

// title はドキュメントの表示名を返す。
func (d document) title() string {
	if d.Name != "" {
		return d.Name
	}
	if d.Title != "" {
		return d.Title
	}
	return "Untitled"
}

// body はドキュメントの本文を返す。
func (d document) body() string {
	if d.Description != "" {
		return d.Description
	}
	return d.Content
}

// matches は検索語がシリアライズ済みドキュメントに部分一致するかを判定する。
// 大文字小文字は区別しない。
func matches(query string, searchData json.RawMessage) bool {
	return strings.Contains(strings.ToLower(string(searchData)), strings.ToLower(query))
}

// relevanceScore は検索語に対するドキュメントの関連度スコアを計算する。
// 名前への部分一致が最も重く、前方一致には追加の加点がある。
func relevanceScore(query string, doc document) int {
	q := strings.ToLower(query)
	score := 0

	if doc.Name != "" {
		name := strings.ToLower(doc.Name)
		if strings.Contains(name, q) {
			score += 10
		}
		if strings.HasPrefix(name, q) {
			score += 5
		}
	}
	if doc.Description != "" && strings.Contains(strings.ToLower(doc.Description), q) {
		score += 3
	}
	for _, tag := range doc.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			score += 2
		}
	}
	if doc.Type != "" && strings.Contains(strings.ToLower(doc.Type), q) {
		score += 1
	}

	return score
}
