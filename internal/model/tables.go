package model

// Tables 需要迁移的全部表
var Tables = []interface{}{
	&User{},
	&Product{},
	&Cart{},
	&CartLine{},
	&Order{},
	&OrderDetail{},
	&Payment{},
	&Review{},
}
