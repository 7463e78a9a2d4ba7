package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Campus Registrar API",
        "description": "Section enrollment, waitlist promotion and registrar overrides",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [
        {"BearerAuth": []}
    ],
    "tags": [
        {"name": "Registration", "description": "Seat requests, drops and grading"},
        {"name": "Sections", "description": "Seat counters and waitlists"},
        {"name": "Overrides", "description": "Registrar force-enrollment"},
        {"name": "Audit", "description": "Compliance trail"},
        {"name": "Operations", "description": "Maintenance and runtime metrics"}
    ],
    "paths": {
        "/registrations": {
            "post": {
                "tags": ["Registration"],
                "summary": "Request a seat; joins the waitlist when the section is full",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Enrolled or waitlisted", "schema": {"$ref": "#/definitions/RegistrationResult"}},
                    "403": {"description": "Hold, missing prerequisite or wrong student", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already enrolled, section closed or contention", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Maintenance mode", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}": {
            "delete": {
                "tags": ["Registration"],
                "summary": "Drop an active or waitlisted enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Dropped; promoted holds the promoted student id", "schema": {"$ref": "#/definitions/DropResult"}},
                    "404": {"description": "Unknown enrollment", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Enrollment already terminal", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}/complete": {
            "post": {
                "tags": ["Registration"],
                "summary": "Record a final grade",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CompleteEnrollmentRequest"}}
                ],
                "responses": {
                    "200": {"description": "Completed", "schema": {"$ref": "#/definitions/Enrollment"}},
                    "409": {"description": "Enrollment is not active", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/overrides": {
            "post": {
                "tags": ["Overrides"],
                "summary": "Force-enroll a student past capacity and eligibility rules",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ForceEnrollRequest"}}
                ],
                "responses": {
                    "201": {"description": "Override applied or already in place", "schema": {"$ref": "#/definitions/RegistrationResult"}},
                    "403": {"description": "Role may not override", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sections/{id}/state": {
            "get": {
                "tags": ["Sections"],
                "summary": "Seat usage snapshot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/SectionState"}},
                    "404": {"description": "Unknown section", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sections/{id}/waitlist": {
            "get": {
                "tags": ["Sections"],
                "summary": "Waitlist in position order",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/WaitlistEntry"}}}
                }
            }
        },
        "/sections/{id}/waitlist/{studentId}": {
            "delete": {
                "tags": ["Sections"],
                "summary": "Remove a student from the waitlist",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Removed", "schema": {"$ref": "#/definitions/DropResult"}},
                    "404": {"description": "Student is not waitlisted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sections/{id}/invariants": {
            "get": {
                "tags": ["Sections"],
                "summary": "Check counter, waitlist and override consistency",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/InvariantReport"}}
                }
            }
        },
        "/audit/events": {
            "get": {
                "tags": ["Audit"],
                "summary": "List audit events, oldest first",
                "parameters": [
                    {"name": "section_id", "in": "query", "type": "string"},
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "event_type", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit/overrides": {
            "get": {
                "tags": ["Audit"],
                "summary": "List override records",
                "parameters": [
                    {"name": "section_id", "in": "query", "type": "string"},
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit/export": {
            "get": {
                "tags": ["Audit"],
                "summary": "Download matching audit events",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "section_id", "in": "query", "type": "string"},
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "event_type", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Attachment"},
                    "400": {"description": "Unknown format or too many rows", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/maintenance": {
            "get": {
                "tags": ["Operations"],
                "summary": "Read the maintenance flag",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/MaintenanceRequest"}}
                }
            },
            "put": {
                "tags": ["Operations"],
                "summary": "Toggle maintenance mode",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MaintenanceRequest"}}
                ],
                "responses": {
                    "200": {"description": "Stored", "schema": {"$ref": "#/definitions/MaintenanceRequest"}},
                    "403": {"description": "Administrators only", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Operations"],
                "summary": "Runtime counters snapshot",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "RegisterRequest": {
            "type": "object",
            "required": ["student_id", "section_id"],
            "properties": {
                "student_id": {"type": "string"},
                "section_id": {"type": "string"}
            }
        },
        "ForceEnrollRequest": {
            "type": "object",
            "required": ["student_id", "section_id", "reason"],
            "properties": {
                "student_id": {"type": "string"},
                "section_id": {"type": "string"},
                "reason": {"type": "string"}
            }
        },
        "CompleteEnrollmentRequest": {
            "type": "object",
            "required": ["grade"],
            "properties": {
                "grade": {"type": "string"}
            }
        },
        "MaintenanceRequest": {
            "type": "object",
            "required": ["enabled"],
            "properties": {
                "enabled": {"type": "boolean"}
            }
        },
        "Enrollment": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "student_id": {"type": "string"},
                "section_id": {"type": "string"},
                "status": {"type": "string", "enum": ["ACTIVE", "WAITLISTED", "DROPPED", "COMPLETED"]},
                "override": {"type": "boolean"},
                "created_at": {"type": "string", "format": "date-time"},
                "ended_at": {"type": "string", "format": "date-time"},
                "grade": {"type": "string"}
            }
        },
        "RegistrationResult": {
            "type": "object",
            "properties": {
                "enrollment": {"$ref": "#/definitions/Enrollment"},
                "status": {"type": "string"},
                "position": {"type": "integer"},
                "override": {"type": "boolean"},
                "outcome": {"type": "string", "enum": ["APPLIED", "ALREADY_OVERRIDDEN", "ALREADY_ACTIVE"]}
            }
        },
        "DropResult": {
            "type": "object",
            "properties": {
                "enrollment": {"$ref": "#/definitions/Enrollment"},
                "status": {"type": "string"},
                "promoted": {"type": "string"}
            }
        },
        "SectionState": {
            "type": "object",
            "properties": {
                "section_id": {"type": "string"},
                "status": {"type": "string", "enum": ["OPEN", "FULL", "CLOSED"]},
                "capacity": {"type": "integer"},
                "enrolled_count": {"type": "integer"},
                "waitlist_count": {"type": "integer"},
                "override_count": {"type": "integer"}
            }
        },
        "WaitlistEntry": {
            "type": "object",
            "properties": {
                "section_id": {"type": "string"},
                "student_id": {"type": "string"},
                "position": {"type": "integer"},
                "joined_at": {"type": "string", "format": "date-time"}
            }
        },
        "InvariantReport": {
            "type": "object",
            "properties": {
                "section_id": {"type": "string"},
                "capacity": {"type": "integer"},
                "enrolled_count": {"type": "integer"},
                "seated_overrides": {"type": "integer"},
                "waitlist_count": {"type": "integer"},
                "violations": {"type": "array", "items": {"type": "string"}},
                "checked_at_unix_milli": {"type": "integer"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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
