// Package docs registers the OpenAPI document served under /swagger.
// Regenerate with `swag init -g cmd/server/main.go`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {
            "get": {"tags": ["系统"], "summary": "健康检查", "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}}
        },
        "/api/v1/cart": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["购物车"], "summary": "查看购物车", "responses": {"200": {"description": "OK"}}},
            "delete": {"security": [{"BearerAuth": []}], "tags": ["购物车"], "summary": "清空购物车", "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/cart/items/{product_id}": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["购物车"], "summary": "加入购物车",
                "parameters": [{"type": "integer", "name": "product_id", "in": "path", "required": true}, {"type": "integer", "name": "quantity", "in": "query", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}}},
            "put": {"security": [{"BearerAuth": []}], "tags": ["购物车"], "summary": "修改购物车数量",
                "parameters": [{"type": "integer", "name": "product_id", "in": "path", "required": true}, {"type": "integer", "name": "quantity", "in": "query", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}}},
            "delete": {"security": [{"BearerAuth": []}], "tags": ["购物车"], "summary": "移除购物车商品",
                "parameters": [{"type": "integer", "name": "product_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/orders": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["订单"], "summary": "我的订单列表",
                "parameters": [{"type": "integer", "default": 1, "name": "page", "in": "query"}, {"type": "integer", "default": 10, "name": "page_size", "in": "query"}],
                "responses": {"200": {"description": "OK"}}},
            "post": {"security": [{"BearerAuth": []}], "tags": ["订单"], "summary": "创建订单",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.createOrderRequest"}}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}, "409": {"description": "Conflict"}}}
        },
        "/api/v1/orders/checkout": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["订单"], "summary": "购物车结算",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.checkoutRequest"}}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "409": {"description": "Conflict"}}}
        },
        "/api/v1/orders/{id}": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["订单"], "summary": "订单详情",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}, "404": {"description": "Not Found"}}}
        },
        "/api/v1/orders/{id}/status": {
            "put": {"security": [{"BearerAuth": []}], "tags": ["订单"], "summary": "修改订单状态",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true},
                    {"enum": ["PENDING", "CONFIRMED", "PAYMENT_FAILED", "PAID", "SHIPPED", "DELIVERED", "CANCELLED"], "type": "string", "name": "status", "in": "query", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "403": {"description": "Forbidden"}, "409": {"description": "Conflict"}}}
        },
        "/api/v1/orders/{id}/cancel": {
            "put": {"security": [{"BearerAuth": []}], "tags": ["订单"], "summary": "取消订单",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}, "404": {"description": "Not Found"}, "409": {"description": "Conflict"}}}
        },
        "/api/v1/payment/order": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["支付"], "summary": "发起支付",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.initiatePaymentRequest"}}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "403": {"description": "Forbidden"}, "409": {"description": "Conflict"}, "502": {"description": "Bad Gateway"}}}
        },
        "/api/v1/payment/retry/{order_id}": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["支付"], "summary": "重试支付",
                "parameters": [{"type": "integer", "name": "order_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}, "409": {"description": "Conflict"}}}
        },
        "/api/v1/payment/gateway-return": {
            "get": {"tags": ["支付"], "summary": "支付网关回调",
                "parameters": [{"type": "string", "name": "vnp_TxnRef", "in": "query", "required": true}, {"type": "string", "name": "vnp_SecureHash", "in": "query", "required": true}],
                "responses": {"302": {"description": "Found"}}}
        },
        "/api/v1/reviews/orders/{order_id}/products/{product_id}": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["评价"], "summary": "发表评价",
                "parameters": [{"type": "integer", "name": "order_id", "in": "path", "required": true}, {"type": "integer", "name": "product_id", "in": "path", "required": true},
                    {"type": "integer", "name": "rating", "in": "query", "required": true}, {"type": "string", "name": "comment", "in": "query", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "403": {"description": "Forbidden"}, "409": {"description": "Conflict"}}}
        },
        "/api/v1/products/{id}": {
            "get": {"tags": ["商品"], "summary": "商品详情",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/api/v1/products/{id}/reviews": {
            "get": {"tags": ["评价"], "summary": "商品评价列表",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}, {"type": "integer", "default": 1, "name": "page", "in": "query"}, {"type": "integer", "default": 10, "name": "page_size", "in": "query"}],
                "responses": {"200": {"description": "OK"}}}
        },
        "/api/v1/admin/products/{id}/pricing": {
            "put": {"security": [{"BearerAuth": []}], "tags": ["商品"], "summary": "修改商品定价",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}, {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.pricingRequest"}}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "403": {"description": "Forbidden"}, "404": {"description": "Not Found"}}}
        }
    },
    "definitions": {
        "handler.orderItemRequest": {"type": "object", "required": ["product_id", "quantity"],
            "properties": {"product_id": {"type": "integer"}, "quantity": {"type": "integer", "minimum": 1}}},
        "handler.checkoutRequest": {"type": "object",
            "properties": {"use_user_address": {"type": "boolean"}, "shipping_name": {"type": "string"}, "shipping_phone": {"type": "string"},
                "shipping_address": {"type": "string"}, "payment_method": {"type": "string", "enum": ["COD", "GATEWAY"]}}},
        "handler.createOrderRequest": {"type": "object", "required": ["items"],
            "properties": {"items": {"type": "array", "items": {"$ref": "#/definitions/handler.orderItemRequest"}}, "use_user_address": {"type": "boolean"},
                "shipping_name": {"type": "string"}, "shipping_phone": {"type": "string"}, "shipping_address": {"type": "string"},
                "payment_method": {"type": "string", "enum": ["COD", "GATEWAY"]}}},
        "handler.initiatePaymentRequest": {"type": "object", "required": ["order_id", "method"],
            "properties": {"order_id": {"type": "integer"}, "method": {"type": "string", "enum": ["COD", "GATEWAY"]}}},
        "handler.pricingRequest": {"type": "object", "required": ["price"],
            "properties": {"price": {"type": "string", "example": "120000.00"}, "discount": {"type": "integer", "minimum": 0, "maximum": 100}}},
        "response.Response": {"type": "object",
            "properties": {"code": {"type": "string"}, "message": {"type": "string"}, "reason": {"type": "string"}, "data": {}}}
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Bookstore API",
	Description:      "订单、支付与库存一致性服务",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
