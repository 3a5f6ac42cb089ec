// Package docs holds the swagger document served at /swagger/doc.json. Keep it in
// step with the @-annotations on the handlers.
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
        "/pricing": {
            "get": {
                "produces": ["application/json"],
                "tags": ["pricing"],
                "summary": "Price tiers",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "properties": {"tiers": {"type": "array", "items": {"$ref": "#/definitions/models.PriceTier"}}}}}
                }
            }
        },
        "/webhooks/card": {
            "post": {
                "description": "Verified with the x-paystack-signature header. Answers 2xx for applied, duplicate and ignored events; 5xx asks the provider to retry.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["webhooks"],
                "summary": "Card gateway webhook",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.SettlementResult"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/webhooks/crypto": {
            "post": {
                "description": "Verified with the x-nowpayments-sig header.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["webhooks"],
                "summary": "Crypto gateway webhook",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.SettlementResult"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/accounts/signup": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["accounts"],
                "summary": "Join the beta",
                "responses": {
                    "200": {"description": "Existing account", "schema": {"$ref": "#/definitions/services.Admission"}},
                    "201": {"description": "Admitted", "schema": {"$ref": "#/definitions/services.Admission"}},
                    "202": {"description": "Waitlisted", "schema": {"$ref": "#/definitions/services.Admission"}}
                }
            }
        },
        "/credits/balance": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["credits"],
                "summary": "Credit balance",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "properties": {"balance": {"type": "integer"}}}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/credits/history": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["credits"],
                "summary": "Ledger history",
                "parameters": [{"type": "integer", "description": "Number of entries", "name": "limit", "in": "query"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "properties": {"entries": {"type": "array", "items": {"$ref": "#/definitions/models.LedgerEntry"}}}}}
                }
            }
        },
        "/generate": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["generation"],
                "summary": "Generate a website",
                "parameters": [{"description": "Prompt", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/services.GenerationRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.GenerationResult"}},
                    "402": {"description": "Payment Required", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/payments": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["payments"],
                "summary": "List purchases",
                "parameters": [{"type": "integer", "description": "Number of transactions (max 50)", "name": "limit", "in": "query"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "properties": {"transactions": {"type": "array", "items": {"$ref": "#/definitions/models.PaymentTransaction"}}}}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Freezes the tier price onto a pending transaction and returns the provider checkout URL when there is one",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["payments"],
                "summary": "Start a purchase",
                "parameters": [{"description": "Purchase", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.createPaymentRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/models.PaymentTransaction"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/payments/{txId}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["payments"],
                "summary": "Get purchase",
                "parameters": [{"type": "string", "description": "Transaction ID", "name": "txId", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PaymentTransaction"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/payments/{txId}/qr": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["payments"],
                "summary": "Checkout QR code",
                "parameters": [{"type": "string", "description": "Transaction ID", "name": "txId", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.CheckoutQR"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/payments/{txId}/proof": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["payments"],
                "summary": "Submit bank transfer proof",
                "parameters": [
                    {"type": "string", "description": "Transaction ID", "name": "txId", "in": "path", "required": true},
                    {"description": "Proof of payment", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/services.BankTransferProof"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PaymentTransaction"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/admin/payments/{txId}/fail": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Fail purchase",
                "parameters": [
                    {"type": "string", "description": "Transaction ID", "name": "txId", "in": "path", "required": true},
                    {"description": "Reason", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.failPaymentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PaymentTransaction"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/admin/payments/{txId}/refund": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Refund purchase",
                "parameters": [{"type": "string", "description": "Transaction ID", "name": "txId", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.RefundResult"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/admin/payments/{txId}/settle": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Settle bank transfer",
                "parameters": [
                    {"type": "string", "description": "Transaction ID", "name": "txId", "in": "path", "required": true},
                    {"description": "Bank reference (defaults to the submitted proof)", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.settlePaymentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.SettlementResult"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/admin/pricing/{tier}": {
            "put": {
                "security": [{"BearerAuth": []}],
                "description": "Pending purchases keep the price frozen when they were started",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Update price tier",
                "parameters": [
                    {"type": "string", "description": "Tier name", "name": "tier", "in": "path", "required": true},
                    {"description": "Tier", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.updatePricingRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PriceTier"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/admin/capacity": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Beta capacity",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.BetaCapacity"}}
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Set beta capacity",
                "parameters": [{"description": "Limit", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.updateCapacityRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.BetaCapacity"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/admin/accounts/{accountId}/audit": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Ledger audit",
                "parameters": [{"type": "string", "description": "Account ID", "name": "accountId", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.ReplayReport"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/admin/anomalies": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Settlement anomalies",
                "parameters": [{"type": "integer", "description": "Number of records (default 100)", "name": "limit", "in": "query"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "properties": {"anomalies": {"type": "array", "items": {"type": "object"}}}}}
                }
            }
        }
    },
    "definitions": {
        "handlers.createPaymentRequest": {
            "type": "object",
            "required": ["currency", "provider", "tier"],
            "properties": {
                "currency": {"type": "string"},
                "email": {"type": "string"},
                "provider": {"type": "string", "enum": ["card-gateway", "crypto-gateway", "bank-transfer"]},
                "tier": {"type": "string", "maxLength": 32}
            }
        },
        "handlers.failPaymentRequest": {
            "type": "object",
            "required": ["reason"],
            "properties": {"reason": {"type": "string", "maxLength": 200}}
        },
        "handlers.settlePaymentRequest": {
            "type": "object",
            "properties": {"bank_reference": {"type": "string", "maxLength": 64}}
        },
        "handlers.updatePricingRequest": {
            "type": "object",
            "required": ["credits"],
            "properties": {
                "credits": {"type": "integer"},
                "is_active": {"type": "boolean"},
                "price_local": {"type": "number"},
                "price_usd": {"type": "number"}
            }
        },
        "handlers.updateCapacityRequest": {
            "type": "object",
            "properties": {"max_free_users": {"type": "integer", "minimum": 0}}
        },
        "models.BetaCapacity": {
            "type": "object",
            "properties": {
                "current_free_users": {"type": "integer"},
                "max_free_users": {"type": "integer"},
                "updated_at": {"type": "string"}
            }
        },
        "models.LedgerEntry": {
            "type": "object",
            "properties": {
                "account_id": {"type": "string"},
                "created_at": {"type": "string"},
                "delta": {"type": "integer"},
                "id": {"type": "integer"},
                "idempotency_key": {"type": "string"},
                "reason": {"type": "string"},
                "resulting_balance": {"type": "integer"}
            }
        },
        "models.PaymentTransaction": {
            "type": "object",
            "properties": {
                "account_id": {"type": "string"},
                "amount": {"type": "number"},
                "checkout_url": {"type": "string"},
                "completed_at": {"type": "string"},
                "created_at": {"type": "string"},
                "credits_granted": {"type": "integer"},
                "currency": {"type": "string"},
                "failure_reason": {"type": "string"},
                "id": {"type": "string"},
                "metadata": {"type": "object"},
                "provider": {"type": "string"},
                "provider_reference": {"type": "string"},
                "status": {"type": "string", "enum": ["pending", "completed", "failed", "refunded"]},
                "tier": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "models.PriceTier": {
            "type": "object",
            "properties": {
                "credits": {"type": "integer"},
                "is_active": {"type": "boolean"},
                "price_local": {"type": "number"},
                "price_usd": {"type": "number"},
                "tier": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "services.Admission": {
            "type": "object",
            "properties": {
                "account_id": {"type": "string"},
                "admitted": {"type": "boolean"},
                "balance": {"type": "integer"},
                "existing": {"type": "boolean"},
                "waitlist_position": {"type": "integer"}
            }
        },
        "services.BankTransferProof": {
            "type": "object",
            "required": ["bank_reference", "paid_at", "sender_name"],
            "properties": {
                "amount_sent": {"type": "number"},
                "bank_reference": {"type": "string", "maxLength": 64},
                "paid_at": {"type": "string"},
                "proof_url": {"type": "string"},
                "sender_name": {"type": "string", "maxLength": 140}
            }
        },
        "services.CheckoutQR": {
            "type": "object",
            "properties": {
                "checkout_url": {"type": "string"},
                "image": {"type": "string"},
                "transaction_id": {"type": "string"}
            }
        },
        "services.ErrorResponse": {
            "type": "object",
            "properties": {
                "details": {"type": "object", "additionalProperties": {"type": "string"}},
                "error": {"type": "string"}
            }
        },
        "services.GenerationRequest": {
            "type": "object",
            "required": ["prompt"],
            "properties": {
                "language": {"type": "string"},
                "prompt": {"type": "string", "maxLength": 8000}
            }
        },
        "services.GenerationResult": {
            "type": "object",
            "properties": {
                "balance": {"type": "integer"},
                "content": {"type": "string"},
                "generation_id": {"type": "string"}
            }
        },
        "services.RefundResult": {
            "type": "object",
            "properties": {
                "clawed_back": {"type": "integer"},
                "new_balance": {"type": "integer"},
                "shortfall": {"type": "integer"},
                "transaction": {"$ref": "#/definitions/models.PaymentTransaction"}
            }
        },
        "services.ReplayReport": {
            "type": "object",
            "properties": {
                "account_id": {"type": "string"},
                "balance": {"type": "integer"},
                "consistent": {"type": "boolean"},
                "entries": {"type": "integer"},
                "first_divergence": {"type": "integer"},
                "reconstructed": {"type": "integer"}
            }
        },
        "services.SettlementResult": {
            "type": "object",
            "properties": {
                "credits": {"type": "integer"},
                "new_balance": {"type": "integer"},
                "outcome": {"type": "string", "enum": ["settled", "duplicate", "failed_recorded", "acknowledged"]},
                "transaction_id": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "SiteCraft Credits API",
	Description:      "Credit ledger, purchases and settlement for the SiteCraft website generator",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
