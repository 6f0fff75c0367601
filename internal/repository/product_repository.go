// Package repository 定义了对数据库表的数据操作接口。
package repository

import (
	"catalog-smart-go/internal/model"

	"gorm.io/gorm"
)

// ProductRepository 定义了目录读取能力：按编码查询商品与动态属性。
type ProductRepository interface {
	// GetProducts 按编码集合查询商品，codes 为空时返回全部商品。
	GetProducts(codes []string) ([]*model.Product, error)
	// GetAttributeMapping 查询动态属性并按商品编码聚合。
	GetAttributeMapping(codes []string) (map[string][]*model.ProductAttribute, error)
}

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository 创建一个新的 ProductRepository 实例。
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

// GetProducts 按编码集合查询商品，codes 为空时返回全部商品。
func (r *productRepository) GetProducts(codes []string) ([]*model.Product, error) {
	var products []*model.Product
	query := r.db
	if len(codes) > 0 {
		query = query.Where("code IN ?", codes)
	}
	err := query.Find(&products).Error
	return products, err
}

// GetAttributeMapping 查询指定编码的动态属性并按商品编码聚合。
func (r *productRepository) GetAttributeMapping(codes []string) (map[string][]*model.ProductAttribute, error) {
	var attributes []*model.ProductAttribute
	query := r.db
	if len(codes) > 0 {
		query = query.Where("product_code IN ?", codes)
	}
	if err := query.Find(&attributes).Error; err != nil {
		return nil, err
	}

	mapping := make(map[string][]*model.ProductAttribute)
	for _, attr := range attributes {
		mapping[attr.ProductCode] = append(mapping[attr.ProductCode], attr)
	}
	return mapping, nil
}
