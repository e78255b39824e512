package mapping

import (
	"encoding/json"
	"strings"

	"github.com/snode/goqtt/internal/logger"
	"github.com/snode/goqtt/internal/mapping/template"
)

// Translation is one derived publication produced by Translate.
type Translation struct {
	Topic   string
	Payload string
	QoS     byte
	Retain  bool
}

// Translate splits topic on `/` and walks the mapping tree, at each level
// selecting the child whose name equals the current level exactly. If the
// walk cannot advance, it returns nothing. When the topic is exhausted and
// the reached node carries a subscription, it dispatches on mapping kind
// to produce zero or more derived publications.
func (d *Document) Translate(topic string, payload []byte, qos byte) []Translation {
	levels := strings.Split(topic, "/")
	node := findNode(d.Mappings, levels)
	if node == nil || node.Subscription == nil {
		return nil
	}
	return translateNode(node.Subscription, topic, payload, qos, d.Log)
}

func findNode(nodes []*Node, levels []string) *Node {
	if len(levels) == 0 {
		return nil
	}
	for _, n := range nodes {
		if n.Name != levels[0] {
			continue
		}
		if len(levels) == 1 {
			return n
		}
		return findNode(n.Children, levels[1:])
	}
	return nil
}

func translateNode(sub *Subscription, topic string, payload []byte, qos byte, log *logger.Logger) []Translation {
	switch sub.Kind {
	case KindStatic:
		return translateStatic(sub, payload, qos)
	case KindValue:
		return translateTemplate(sub, map[string]any{"value": string(payload)}, qos, log, topic)
	case KindJSON:
		var root any
		if err := json.Unmarshal(payload, &root); err != nil {
			if log != nil {
				log.LogError(err, "mapping: json payload is not valid json, dropping message", logger.String("topic", topic))
			}
			return nil
		}
		ctx, ok := root.(map[string]any)
		if !ok {
			if log != nil {
				log.Warn("mapping: json payload is not an object, dropping message", logger.String("topic", topic))
			}
			return nil
		}
		return translateTemplate(sub, ctx, qos, log, topic)
	default:
		return nil
	}
}

func translateStatic(sub *Subscription, payload []byte, qos byte) []Translation {
	msg := string(payload)
	var out []Translation
	for _, entry := range sub.Entries {
		for _, mm := range entry.MessageMapping {
			if mm.Message != msg {
				continue
			}
			out = append(out, Translation{
				Topic:   entry.MappedTopic,
				Payload: mm.MappedMessage,
				QoS:     resolveQoS(entry, qos),
				Retain:  entry.RetainMessage,
			})
		}
	}
	return out
}

func translateTemplate(sub *Subscription, ctx map[string]any, qos byte, log *logger.Logger, topic string) []Translation {
	var out []Translation
	for _, entry := range sub.Entries {
		rendered, err := template.Render(entry.MappingTemplate, ctx)
		if err != nil {
			if log != nil {
				log.LogError(err, "mapping: template render failed, dropping message", logger.String("topic", topic), logger.String("mapped_topic", entry.MappedTopic))
			}
			continue
		}
		if rendered == "" {
			continue
		}
		out = append(out, Translation{
			Topic:   entry.MappedTopic,
			Payload: rendered,
			QoS:     resolveQoS(entry, qos),
			Retain:  entry.RetainMessage,
		})
	}
	return out
}

func resolveQoS(entry Entry, publishQoS byte) byte {
	if entry.QoSOverride != nil {
		return *entry.QoSOverride
	}
	return publishQoS
}
