package domain

import "github.com/shopspring/decimal"

// Product описывает складскую позицию. Цена хранится как decimal, без потерь
// точности при записи в NUMERIC.
// ID == 0 означает, что товар ещё не сохранён в репозитории.
type Product struct {
	ID       int64
	Name     string
	Quantity int64
	Price    decimal.Decimal
}

// Order хранит ссылки на товары, переданные при создании заказа.
// Ссылки не копируются: изменения остатка видны через тот же *Product.
type Order struct {
	ID       int64
	Products []*Product
}

// ProductIDs возвращает идентификаторы товаров заказа в исходном порядке.
func (o *Order) ProductIDs() []int64 {
	ids := make([]int64, 0, len(o.Products))
	for _, p := range o.Products {
		ids = append(ids, p.ID)
	}
	return ids
}

// Clone возвращает независимую копию товара.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// Clone копирует заказ вместе с товарами. Товары, на которые заказ ссылается
// несколько раз, в копии тоже остаются одним объектом.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	copies := make(map[*Product]*Product, len(o.Products))
	products := make([]*Product, 0, len(o.Products))
	for _, p := range o.Products {
		c, ok := copies[p]
		if !ok {
			c = p.Clone()
			copies[p] = c
		}
		products = append(products, c)
	}
	return &Order{ID: o.ID, Products: products}
}
