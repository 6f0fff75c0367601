// Package model 定义了与数据库表对应的 Go 结构体以及各层之间传递的 DTO。
package model

// Product 定义了 product 表的 ORM 模型，即商品的规范行。
// 本服务只读取该表（目录读取能力），规范行的写入由上游系统负责。
type Product struct {
	ID                 string  `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Code               string  `gorm:"type:varchar(64);not null;index" json:"code"`
	Name               string  `gorm:"type:varchar(255);not null" json:"name"`
	SellerName         string  `gorm:"type:varchar(255)" json:"sellerName"`
	CategoryID         string  `gorm:"type:varchar(64)" json:"categoryId"`
	ManufacturerName   string  `gorm:"type:varchar(255)" json:"manufacturerName"`
	ShortDescription   string  `gorm:"type:text" json:"shortDescription"`
	LongDescription    string  `gorm:"type:text" json:"longDescription"`
	CountryOfOrigin    string  `gorm:"type:varchar(64)" json:"countryOfOrigin"`
	GrossWeight        float64 `gorm:"default:0" json:"grossWeight"`
	Dimension          string  `gorm:"type:varchar(128)" json:"dimension"`
	DomainCategoryCode string  `gorm:"type:varchar(64);default:''" json:"domainCategoryCode"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Product) TableName() string {
	return "product"
}

// ProductAttribute 定义了 product_attribute 表的 ORM 模型，保存商品的动态属性键值对。
type ProductAttribute struct {
	ID             uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductCode    string `gorm:"type:varchar(64);not null;index" json:"productCode"`
	SellerID       string `gorm:"type:varchar(64)" json:"sellerId"`
	SkuID          string `gorm:"type:varchar(64)" json:"skuId"`
	AttributeKey   string `gorm:"type:varchar(128)" json:"attributeKey"`
	AttributeValue string `gorm:"type:text" json:"attributeValue"`
	IsONDCSpecific bool   `gorm:"not null;default:false" json:"isOndcSpecific"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ProductAttribute) TableName() string {
	return "product_attribute"
}
