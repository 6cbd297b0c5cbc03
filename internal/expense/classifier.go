package expense

import "strings"

// CategoryOther is the fallback category for documents no rule matches.
const CategoryOther = "其他"

// CategoryRule pairs an expense category with its trigger keywords.
type CategoryRule struct {
	Category string
	Keywords []string
}

// DefaultCategoryRules is the built-in classification table. The slice order
// is the matching order: categories are not mutually exclusive by keyword
// (a vendor name can contain both a transportation and a catering term), so
// first-match-wins over this exact order is part of the contract.
var DefaultCategoryRules = []CategoryRule{
	{"交通费", []string{"滴滴", "出租", "地铁", "公交", "高铁", "火车", "机票", "航空", "铁路", "出行"}},
	{"差旅费-住宿", []string{"酒店", "宾馆", "民宿", "住宿", "旅馆", "客房"}},
	{"业务招待费", []string{"餐饮", "餐厅", "饭店", "酒楼", "餐馆", "食堂", "全聚德", "海底捞"}},
	{"办公费", []string{"文具", "打印", "复印", "办公用品", "纸张", "墨盒", "笔记本", "文件夹"}},
	{"通讯费", []string{"电信", "移动", "联通", "话费", "通讯", "宽带"}},
	{"固定资产", []string{"固定资产", "设备", "电脑", "服务器", "打印机", "空调", "家具"}},
	{"低值易耗品", []string{"低值易耗", "工具", "耗材"}},
}

// Classifier assigns expense categories by ordered keyword matching.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	rules []CategoryRule
}

// NewClassifier creates a classifier over the given rule table. A nil table
// selects DefaultCategoryRules.
func NewClassifier(rules []CategoryRule) *Classifier {
	if rules == nil {
		rules = DefaultCategoryRules
	}
	return &Classifier{rules: rules}
}

// Classify returns the first category whose keyword appears in the seller
// name or item descriptions, or CategoryOther when nothing matches.
func (c *Classifier) Classify(sellerName string, items []string) string {
	text := strings.ToLower(sellerName + strings.Join(items, " "))

	for _, rule := range c.rules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(text, strings.ToLower(keyword)) {
				return rule.Category
			}
		}
	}

	return CategoryOther
}
