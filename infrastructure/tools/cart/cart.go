// Package cart persists shopping cart items in SQLite through gorm.
package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"

	"github.com/ahrav/go-maestro/infrastructure/tools"
	"github.com/ahrav/go-maestro/internal/ports"
)

// ToolName is the name the cart tool is declared under.
const ToolName = "add_product_to_mycart"

// Item is one cart row.
type Item struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ProductName string    `gorm:"type:varchar(512);not null" json:"product_name"`
	ProductURL  string    `gorm:"type:text" json:"product_url"`
	Price       string    `gorm:"type:varchar(64)" json:"price"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName keeps the table name stable.
func (Item) TableName() string { return "cart_items" }

// Store reads and writes cart items.
type Store struct {
	db *gorm.DB
}

// NewStore migrates the cart table on db.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Item{}); err != nil {
		return nil, errors.Wrap(err, "migrate cart_items")
	}
	return &Store{db: db}, nil
}

// Add inserts one row per product name in a single transaction. urls and
// prices are matched by index; missing entries are stored as "".
func (s *Store) Add(ctx context.Context, names, urls, prices []string) (int, error) {
	if len(names) == 0 {
		return 0, errors.New("no products to add")
	}

	items := make([]Item, len(names))
	for i, name := range names {
		items[i] = Item{ProductName: name, ProductURL: at(urls, i), Price: at(prices, i)}
	}

	if err := s.db.WithContext(ctx).Create(&items).Error; err != nil {
		return 0, errors.Wrap(err, "insert cart items")
	}
	return len(items), nil
}

// List returns every item, oldest first.
func (s *Store) List(ctx context.Context) ([]Item, error) {
	var items []Item
	if err := s.db.WithContext(ctx).Order("id").Find(&items).Error; err != nil {
		return nil, errors.Wrap(err, "list cart items")
	}
	return items, nil
}

func at(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}

const schema = `{
	"type": "object",
	"properties": {
		"product_names": {"type": "array", "items": {"type": "string"}, "minItems": 1, "description": "장바구니에 추가할 상품 이름 목록"},
		"product_urls": {"type": "array", "items": {"type": "string"}, "description": "상품 URL 목록. product_names와 같은 순서이며 없으면 빈 문자열"},
		"prices": {"type": "array", "items": {"type": "string"}, "description": "상품 가격 목록. product_names와 같은 순서이며 없으면 빈 문자열"}
	},
	"required": ["product_names"]
}`

type addArgs struct {
	ProductNames []string `json:"product_names"`
	ProductURLs  []string `json:"product_urls"`
	Prices       []string `json:"prices"`
}

// Tool exposes Add. It is mutating: every call inserts rows.
func Tool(s *Store) ports.Tool {
	return tools.New(ToolName,
		"사용자가 추천 혹은 검색된 상품을 장바구니에 추가하고자 할 때 사용합니다. 대화 기록에서 저장할 상품을 찾습니다.",
		schema,
		tools.Typed(func(ctx context.Context, args addArgs, _ ports.ToolInvocation) any {
			n, err := s.Add(ctx, args.ProductNames, args.ProductURLs, args.Prices)
			if err != nil {
				return tools.ErrorResult(err)
			}
			return fmt.Sprintf("%d개의 상품이 장바구니에 성공적으로 추가되었습니다.", n)
		}),
		tools.Mutating())
}
