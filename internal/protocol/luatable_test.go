package protocol

import (
	"reflect"
	"testing"
)

func TestParseLuaTableFlat(t *testing.T) {
	got, err := ParseLuaTable(`{["昵称"]="测试",["等级"]=175,["在线"]=true}`)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{
		"昵称": "测试",
		"等级": int64(175),
		"在线": true,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v want %#v", got, want)
	}
}

func TestParseLuaTableNested(t *testing.T) {
	got, err := ParseLuaTable(`{["帮派"]={["名称"]="无门派",["职位"]="帮主"},["坐骑"]={[1]="白马",[2]="黑驴"}}`)
	if err != nil {
		t.Fatal(err)
	}
	faction, ok := got["帮派"].(map[string]interface{})
	if !ok {
		t.Fatalf("帮派 is %T, want map", got["帮派"])
	}
	if faction["名称"] != "无门派" {
		t.Errorf("名称 = %v", faction["名称"])
	}
	mounts, ok := got["坐骑"].(map[string]interface{})
	if !ok {
		t.Fatalf("坐骑 is %T, want map", got["坐骑"])
	}
	if mounts["1"] != "白马" || mounts["2"] != "黑驴" {
		t.Errorf("integer-keyed entries = %#v", mounts)
	}
}

func TestParseLuaTableBareIdentKeys(t *testing.T) {
	got, err := ParseLuaTable(`{level=99,name="npc",nested={hp=1000}}`)
	if err != nil {
		t.Fatal(err)
	}
	if got["level"] != int64(99) || got["name"] != "npc" {
		t.Errorf("got %#v", got)
	}
	nested := got["nested"].(map[string]interface{})
	if nested["hp"] != int64(1000) {
		t.Errorf("nested = %#v", nested)
	}
}

func TestParseLuaTableArrayEntries(t *testing.T) {
	got, err := ParseLuaTable(`{"a","b","c"}`)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{"1": "a", "2": "b", "3": "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v want %#v", got, want)
	}
}

func TestParseLuaTableNumbers(t *testing.T) {
	got, err := ParseLuaTable(`{["正"]=12,["负"]=-3,["率"]=0.5}`)
	if err != nil {
		t.Fatal(err)
	}
	if got["正"] != int64(12) || got["负"] != int64(-3) || got["率"] != 0.5 {
		t.Errorf("got %#v", got)
	}
}

func TestParseLuaTableWhitespaceAndSemicolons(t *testing.T) {
	got, err := ParseLuaTable("{ [\"a\"] = 1 ;\n [\"b\"] = 2 , }")
	if err != nil {
		t.Fatal(err)
	}
	if got["a"] != int64(1) || got["b"] != int64(2) {
		t.Errorf("got %#v", got)
	}
}

func TestParseLuaTableRoundTripsBuiltTables(t *testing.T) {
	body, err := BuildCommand("修改宝宝", map[string]interface{}{
		"玩家id": "1",
		"修改数据": map[string]interface{}{
			"属性": map[string]interface{}{"等级": "180"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	inner := body[len("do local ret=") : len(body)-len(" return ret end")]
	got, err := ParseLuaTable(inner)
	if err != nil {
		t.Fatalf("ParseLuaTable(%q): %v", inner, err)
	}
	if got["文本"] != "修改宝宝" || got["玩家id"] != "1" {
		t.Errorf("got %#v", got)
	}
	mod := got["修改数据"].(map[string]interface{})
	attrs := mod["属性"].(map[string]interface{})
	if attrs["等级"] != "180" {
		t.Errorf("nested value = %v", attrs["等级"])
	}
}

func TestParseLuaTableRejectsGarbage(t *testing.T) {
	for _, bad := range []string{
		"",
		"{",
		`{["a"]=}`,
		`{["a"]="x"`,
		`{["a"]="x"} trailing`,
		`{["a"]=func()}`,
	} {
		if _, err := ParseLuaTable(bad); err == nil {
			t.Errorf("ParseLuaTable(%q) succeeded, want error", bad)
		}
	}
}
