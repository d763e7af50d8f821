package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Session API",
        "description": "Session authority and device coordination service",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Password login, refresh rotation, logout"},
        {"name": "Devices", "description": "Active device view and remote logout"},
        {"name": "QRLogin", "description": "QR token handshake between desktop and mobile"},
        {"name": "RemoteScan", "description": "Desktop-initiated barcode scans on the mobile device"},
        {"name": "WebSocket", "description": "Live push channels"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshTokenRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid or replaced session"}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Logout current device",
                "parameters": [
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/LogoutRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Get current user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/devices": {
            "get": {
                "tags": ["Devices"],
                "summary": "List active devices",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/devices/{id}": {
            "delete": {
                "tags": ["Devices"],
                "summary": "Logout a specific device",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "403": {"description": "Device belongs to another user"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/devices/web/logout": {
            "post": {
                "tags": ["Devices"],
                "summary": "Logout all web sessions",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Requires a mobile session"}
                }
            }
        },
        "/qr/tokens": {
            "post": {
                "tags": ["QRLogin"],
                "summary": "Generate QR login token",
                "parameters": [
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/GenerateQRTokenRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/qr/tokens/{token}": {
            "get": {
                "tags": ["QRLogin"],
                "summary": "Poll QR token status",
                "parameters": [
                    {"name": "token", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/qr/tokens/{token}/scan": {
            "post": {
                "tags": ["QRLogin"],
                "summary": "Scan QR token",
                "parameters": [
                    {"name": "token", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "409": {"description": "Already scanned"},
                    "410": {"description": "Expired"}
                }
            }
        },
        "/qr/tokens/{token}/approve": {
            "post": {
                "tags": ["QRLogin"],
                "summary": "Approve QR login",
                "parameters": [
                    {"name": "token", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "409": {"description": "Already resolved"},
                    "410": {"description": "Expired"}
                }
            }
        },
        "/qr/tokens/{token}/reject": {
            "post": {
                "tags": ["QRLogin"],
                "summary": "Reject QR login",
                "parameters": [
                    {"name": "token", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "409": {"description": "Already resolved"}
                }
            }
        },
        "/scans": {
            "post": {
                "tags": ["RemoteScan"],
                "summary": "Request a remote scan",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "object", "properties": {"tab_id": {"type": "string"}}}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No active mobile device"},
                    "409": {"description": "Mobile device offline"}
                }
            }
        },
        "/scans/{id}": {
            "delete": {
                "tags": ["RemoteScan"],
                "summary": "Cancel a pending scan",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/scans/{id}/result": {
            "post": {
                "tags": ["RemoteScan"],
                "summary": "Report a scan result",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RemoteScanResult"}}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/scans/{id}/error": {
            "post": {
                "tags": ["RemoteScan"],
                "summary": "Report a scan failure",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "object", "properties": {"message": {"type": "string"}}}}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/ws": {
            "get": {
                "tags": ["WebSocket"],
                "summary": "Device push socket",
                "parameters": [
                    {"name": "token", "in": "query", "type": "string", "required": true},
                    {"name": "tab_id", "in": "query", "type": "string"}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/ws/qr/{token}": {
            "get": {
                "tags": ["WebSocket"],
                "summary": "QR login wait socket",
                "parameters": [
                    {"name": "token", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "404": {"description": "Not found"},
                    "410": {"description": "Expired"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password", "device_class"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "device_class": {"type": "string", "enum": ["mobile", "web"]},
                "browser_id": {"type": "string"},
                "device_name": {"type": "string"},
                "fingerprint": {"type": "string"}
            }
        },
        "RefreshTokenRequest": {
            "type": "object",
            "required": ["refresh_token", "device_id"],
            "properties": {
                "refresh_token": {"type": "string"},
                "device_id": {"type": "string"}
            }
        },
        "LogoutRequest": {
            "type": "object",
            "properties": {
                "cascade": {"type": "boolean"}
            }
        },
        "GenerateQRTokenRequest": {
            "type": "object",
            "properties": {
                "fingerprint": {"type": "string"},
                "browser_id": {"type": "string"}
            }
        },
        "RemoteScanResult": {
            "type": "object",
            "required": ["barcode"],
            "properties": {
                "barcode": {"type": "string"},
                "product": {"type": "object"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
