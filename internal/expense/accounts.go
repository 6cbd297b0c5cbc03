package expense

// Account identifies a ledger account by code and display name.
type Account struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// CreditAccount is the counter-liability account every voucher batch is
// credited against (其他应付款-员工).
var CreditAccount = Account{Code: "2241", Name: "其他应付款-员工"}

// accountCodes maps expense categories to ledger accounts.
var accountCodes = map[string]Account{
	"交通费":    {Code: "660206", Name: "管理费用-交通费"},
	"差旅费-住宿": {Code: "660207", Name: "管理费用-差旅费"},
	"业务招待费":  {Code: "660208", Name: "管理费用-业务招待费"},
	"办公费":    {Code: "660201", Name: "管理费用-办公费"},
	"通讯费":    {Code: "660203", Name: "管理费用-通讯费"},
	"固定资产":   {Code: "1601", Name: "固定资产"},
	"低值易耗品":  {Code: "140301", Name: "周转材料-低值易耗品"},
	CategoryOther: {Code: "660299", Name: "管理费用-其他"},
}

// ResolveAccount returns the ledger account for a category. Unknown
// categories fall back to the 其他 entry, so it never fails.
func ResolveAccount(category string) Account {
	if account, ok := accountCodes[category]; ok {
		return account
	}
	return accountCodes[CategoryOther]
}
