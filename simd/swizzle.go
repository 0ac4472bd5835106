package simd

// Number of Tri4 groups needed for n triangles.
func GroupCount(n int) int {
	return (n + Width - 1) / Width
}

// SwizzleForSIMD regroups AoS triangle records so that lane i of group g
// holds record g*Width+i. The tail group is padded by repeating the last
// record. dst is reused when it has enough capacity.
func SwizzleForSIMD(recs []TriRecord, dst []Tri4) []Tri4 {
	groups := GroupCount(len(recs))
	if cap(dst) < groups {
		dst = make([]Tri4, groups)
	}
	dst = dst[:groups]

	for g := 0; g < groups; g++ {
		grp := &dst[g]
		grp.Animated = false
		for lane := 0; lane < Width; lane++ {
			idx := g*Width + lane
			if idx >= len(recs) {
				idx = len(recs) - 1
			}
			rec := &recs[idx]
			if rec.Animated != 0 {
				grp.Animated = true
			}

			e1 := rec.V[1].Sub(rec.V[0])
			e2 := rec.V[2].Sub(rec.V[0])
			e1End := rec.VEnd[1].Sub(rec.VEnd[0])
			e2End := rec.VEnd[2].Sub(rec.VEnd[0])
			for a := 0; a < 3; a++ {
				grp.V0[a][lane] = rec.V[0][a]
				grp.E1[a][lane] = e1[a]
				grp.E2[a][lane] = e2[a]
				grp.V0End[a][lane] = rec.VEnd[0][a]
				grp.E1End[a][lane] = e1End[a]
				grp.E2End[a][lane] = e2End[a]
			}
			grp.ID[lane] = rec.ID
		}
	}
	return dst
}
