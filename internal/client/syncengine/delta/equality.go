package delta

import "encoding/json"

// decodeIgnoring unmarshals content as a generic map and strips the
// keys spec §4.4 says never count toward equality, including nested
// appData keys.
func decodeIgnoring(content string) (map[string]interface{}, error) {
	if content == "" {
		return map[string]interface{}{}, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(content), &m); err != nil {
		return nil, err
	}
	for k := range contentKeysToIgnoreWhenCheckingEquality {
		delete(m, k)
	}
	if appData, ok := m["appData"].(map[string]interface{}); ok {
		if sn, ok := appData["org.standardnotes.sn"].(map[string]interface{}); ok {
			for k := range appDataContentKeysToIgnoreWhenCheckingEquality {
				delete(sn, k)
			}
		}
	}
	return m, nil
}

func mapsEqual(a, b map[string]interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		if !valuesEqual(av, bv) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b interface{}) bool {
	am, aok := a.(map[string]interface{})
	bm, bok := b.(map[string]interface{})
	if aok && bok {
		return mapsEqual(am, bm)
	}
	as, aok := a.([]interface{})
	bs, bok := b.([]interface{})
	if aok && bok {
		if len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !valuesEqual(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}
