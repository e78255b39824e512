package mapping

import "testing"

const sampleDoc = `{
  "connection": {
    "keep_alive": 60,
    "client_id": "bridge-1",
    "clean_session": true
  },
  "mappings": {
    "name": "test01",
    "topic_level": {
      "name": "button1",
      "subscription": {
        "qos": 1,
        "static": {
          "mapped_topic": "test02/onboard/set",
          "retain_message": false,
          "message_mapping": [
            {"message": "pressed", "mapped_message": "on"},
            {"message": "released", "mapped_message": "off"}
          ]
        }
      }
    }
  }
}`

func TestParseAndExtractSubscriptions(t *testing.T) {
	doc, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Connection == nil || doc.Connection.ClientID != "bridge-1" {
		t.Fatalf("connection not parsed: %+v", doc.Connection)
	}

	subs := doc.ExtractSubscriptions()
	if len(subs) != 1 {
		t.Fatalf("want 1 subscription, got %d", len(subs))
	}
	if subs[0].Filter != "test01/button1" || subs[0].QoS != 1 {
		t.Fatalf("unexpected subscription: %+v", subs[0])
	}
}

func TestParseRejectsInvalidDocument(t *testing.T) {
	_, err := Parse([]byte(`{"mappings": {"subscription": {"qos": 1}}}`))
	if err == nil {
		t.Fatal("expected validation error for node missing name")
	}
}

func TestScopeToPrefixUnwrapsNamedDeployment(t *testing.T) {
	wrapped := `{"iotempower": ` + sampleDoc + `, "other": {"connection": {"client_id": "other-1"}}}`

	scoped := ScopeToPrefix([]byte(wrapped), "iotempower")
	doc, err := Parse(scoped)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Connection == nil || doc.Connection.ClientID != "bridge-1" {
		t.Fatalf("expected the iotempower-scoped document, got %+v", doc.Connection)
	}
}

func TestScopeToPrefixLeavesUnwrappedDocumentUnchanged(t *testing.T) {
	scoped := ScopeToPrefix([]byte(sampleDoc), "iotempower")
	doc, err := Parse(scoped)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Connection == nil || doc.Connection.ClientID != "bridge-1" {
		t.Fatalf("expected a single-deployment document to parse unchanged, got %+v", doc.Connection)
	}
}

func TestParseRejectsMultipleKinds(t *testing.T) {
	bad := `{"mappings": {"name": "a", "subscription": {
		"qos": 0,
		"static": {"mapped_topic": "x", "message_mapping": [{"message":"a","mapped_message":"b"}]},
		"value": {"mapped_topic": "x", "mapping_template": "{{ value }}"}
	}}}`
	_, err := Parse([]byte(bad))
	if err == nil {
		t.Fatal("expected error for node with two mapping kinds")
	}
}
