package ws

import (
	"kartoffels.dev/internal/protocol"
	"kartoffels.dev/internal/sim/world"
)

func updateMsg(worldID string, u world.ConnUpdate) protocol.UpdateMsg {
	msg := protocol.UpdateMsg{
		Type:            protocol.TypeUpdate,
		ProtocolVersion: protocol.Version,
		WorldID:         worldID,
	}
	if snap := u.Snapshot; snap != nil {
		msg.Tick = snap.Tick
		msg.Version = snap.Version
		msg.Paused = snap.Paused
		msg.Map = protocol.MapObs{
			Size:     snap.Map.Size().ToArray(),
			Encoding: protocol.MapEncodingRLE,
			Tiles:    snap.Map.EncodeTiles(),
		}
		for _, b := range snap.Alive {
			if b == nil {
				continue
			}
			msg.Alive = append(msg.Alive, protocol.AliveBotObs{
				ID:  b.ID.String(),
				Pos: b.Pos.ToArray(),
				Dir: b.Dir.String(),
				Age: b.Age,
			})
		}
		for _, d := range snap.Dead {
			msg.Dead = append(msg.Dead, protocol.DeadBotObs{
				ID:     d.ID.String(),
				Reason: d.Reason,
				Killer: optBotID(d.Killer),
			})
		}
		for _, q := range snap.Queued {
			msg.Queued = append(msg.Queued, protocol.QueuedBotObs{
				ID:       q.ID.String(),
				Place:    q.Place,
				Requeued: q.Requeued,
			})
		}
		if len(snap.Scores) > 0 {
			msg.Scores = make(map[string]uint64, len(snap.Scores))
			for id, s := range snap.Scores {
				msg.Scores[id.String()] = s
			}
		}
	}
	if u.Bot != nil {
		msg.Bot = botObs(*u.Bot)
	}
	return msg
}

func botObs(info world.BotInfo) *protocol.BotObs {
	obs := &protocol.BotObs{
		ID:       info.ID.String(),
		State:    info.State,
		Reason:   info.Reason,
		Killer:   optBotID(info.Killer),
		Place:    info.Place,
		Requeued: info.Requeued,
	}
	if info.Pos != nil {
		p := info.Pos.ToArray()
		obs.Pos = &p
	}
	if info.Dir != nil {
		obs.Dir = info.Dir.String()
	}
	return obs
}

func eventMsg(worldID string, l world.EventLetter) protocol.EventMsg {
	return protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		WorldID:         worldID,
		Tick:            l.Tick,
		Event:           l.Event.EventType(),
		Data:            l.Event,
	}
}

func optBotID(id *world.BotID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
